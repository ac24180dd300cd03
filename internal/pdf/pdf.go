// Package pdf reads source files into document records and writes enriched
// metadata back. Structural reads go through pdfcpu; page text and page
// rendering shell out to poppler-utils (pdftotext, pdftoppm), which handle
// real-world scans far better than extracting embedded objects.
package pdf

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	_ "image/jpeg"
	_ "image/png"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/jackzampolin/folio/internal/document"
)

// embeddedMetadataConfidence is assigned to fields read from the PDF info
// dictionary. Explicit metadata is trusted just below a locked value.
const embeddedMetadataConfidence = 9

// renderDPI matches the pixel density assumed when estimating how much of
// a page an embedded image covers.
const renderDPI = 150

// Reader loads source PDFs into document records.
type Reader struct {
	logger *slog.Logger
	conf   *model.Configuration
}

// NewReader creates a reader with relaxed validation, which tolerates the
// slightly broken files scanners tend to produce.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Reader{logger: logger, conf: conf}
}

// Load reads the file at path into a document record: page text, embedded
// image inventory, and embedded metadata.
func (r *Reader) Load(ctx context.Context, path, baseDir string) (*document.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	doc := document.New(path, baseDir)
	doc.ModTime = info.ModTime()

	workingPath, cleanup, err := r.prepare(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	pageCount, err := pageCount(workingPath)
	if err != nil {
		return nil, fmt.Errorf("page count for %s: %w", path, err)
	}

	dims, err := api.PageDimsFile(workingPath)
	if err != nil {
		r.logger.Warn("page dimensions unavailable", "file", doc.FileName, "error", err)
	}

	texts, err := extractText(ctx, workingPath)
	if err != nil {
		return nil, fmt.Errorf("text extraction for %s: %w", path, err)
	}

	doc.Pages = make([]document.Page, pageCount)
	for i := range doc.Pages {
		p := document.Page{Number: i + 1}
		if i < len(dims) {
			p.Width = dims[i].Width
			p.Height = dims[i].Height
		}
		if i < len(texts) {
			p.Text = texts[i]
			p.WordCount = countWords(texts[i])
		}
		doc.Pages[i] = p
	}

	if err := r.attachImages(workingPath, doc); err != nil {
		// Image inventory is best-effort: a file whose embedded objects
		// cannot be decoded still gets text analysis.
		r.logger.Warn("embedded image extraction failed", "file", doc.FileName, "error", err)
	}
	doc.ImageCoverage = imageCoverage(doc.Pages)

	r.applyEmbeddedMetadata(workingPath, doc)

	r.logger.Debug("loaded document",
		"file", doc.FileName,
		"pages", pageCount,
		"words", doc.WordCount(),
		"image_coverage", fmt.Sprintf("%.0f%%", doc.ImageCoverage),
	)
	return doc, nil
}

// prepare returns a readable path for the file, decrypting permission-
// restricted PDFs to a temp copy when needed.
func (r *Reader) prepare(path string) (string, func(), error) {
	nop := func() {}

	f, err := os.Open(path)
	if err != nil {
		return "", nop, fmt.Errorf("open %s: %w", path, err)
	}
	_, err = api.PageCount(f, r.conf)
	f.Close()
	if err == nil {
		return path, nop, nil
	}

	tmp, err := os.CreateTemp("", "folio-decrypt-*.pdf")
	if err != nil {
		return "", nop, fmt.Errorf("temp file: %w", err)
	}
	tmp.Close()

	if err := api.DecryptFile(path, tmp.Name(), r.conf); err != nil {
		os.Remove(tmp.Name())
		return "", nop, fmt.Errorf("decrypt %s: %w", path, err)
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func pageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, nil)
}

// extractedImagePage parses the page number out of pdfcpu's extracted
// image filenames, which look like "<base>_<page>_<objName>.<ext>".
var extractedImagePage = regexp.MustCompile(`_(\d+)_[^_]+\.\w+$`)

// attachImages extracts embedded image objects to a temp dir and records
// their pixel dimensions (and bytes) on the owning pages.
func (r *Reader) attachImages(path string, doc *document.Document) error {
	tmpDir, err := os.MkdirTemp("", "folio-images-*")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractImagesFile(path, tmpDir, nil, r.conf); err != nil {
		return fmt.Errorf("extract images: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return fmt.Errorf("read image dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := extractedImagePage.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		pageNum, err := strconv.Atoi(m[1])
		if err != nil || pageNum < 1 || pageNum > len(doc.Pages) {
			continue
		}

		imgPath := filepath.Join(tmpDir, entry.Name())
		data, err := os.ReadFile(imgPath)
		if err != nil {
			continue
		}
		width, height := decodeDims(imgPath)
		if width == 0 || height == 0 {
			continue
		}

		page := &doc.Pages[pageNum-1]
		page.Images = append(page.Images, document.PageImage{
			WidthPx:  width,
			HeightPx: height,
			Area:     displayedArea(width, height),
			Data:     data,
		})
	}
	return nil
}

func decodeDims(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// displayedArea estimates the page area an image occupies, in page units
// (points squared). Placement rects are not exposed by the extractor, so
// assume the image was scanned at renderDPI.
func displayedArea(widthPx, heightPx int) float64 {
	w := float64(widthPx) * 72.0 / renderDPI
	h := float64(heightPx) * 72.0 / renderDPI
	return w * h
}

// imageCoverage returns the percentage of total page area covered by
// embedded images, capped per page at 100%.
func imageCoverage(pages []document.Page) float64 {
	if len(pages) == 0 {
		return 0
	}
	var covered float64
	for _, p := range pages {
		pageArea := p.Area()
		if pageArea <= 0 {
			continue
		}
		var imgArea float64
		for _, img := range p.Images {
			imgArea += img.Area
		}
		frac := imgArea / pageArea
		if frac > 1 {
			frac = 1
		}
		covered += frac
	}
	return covered / float64(len(pages)) * 100.0
}

// applyEmbeddedMetadata merges the PDF info dictionary into the record.
func (r *Reader) applyEmbeddedMetadata(path string, doc *document.Document) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	info, err := api.PDFInfo(f, path, nil, false, r.conf)
	if err != nil || info == nil {
		return
	}

	if info.Title != "" {
		doc.SetTitle(info.Title, embeddedMetadataConfidence, document.SourceConventional)
	}
	if info.Author != "" {
		doc.SetCreator(info.Author, embeddedMetadataConfidence, document.SourceConventional)
	}
	if info.Subject != "" {
		doc.SetSummary(info.Subject, embeddedMetadataConfidence, document.SourceConventional)
	}
	if info.CreationDate != "" {
		doc.SetCreationDate(info.CreationDate, embeddedMetadataConfidence, document.SourceConventional)
	}

	if len(info.Keywords) > 0 {
		doc.AddTags(parseStoredTags(info.Keywords))
	}

	// Files exported by a previous run carry their enrichment in document
	// properties; recover it with the stored confidences.
	if len(info.Properties) > 0 {
		applyStoredProperties(info.Properties, doc)
	}
}
