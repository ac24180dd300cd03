// Package document holds the enrichment record for a single source file:
// per-field values with confidence and provenance, the merge rules that
// govern updates, and the collection type used for cross-document passes.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PageImage describes one embedded image on a page.
type PageImage struct {
	WidthPx  int     `json:"width_px"`
	HeightPx int     `json:"height_px"`
	Area     float64 `json:"area"` // displayed area in page units
	Data     []byte  `json:"-"`
}

// PixelArea returns the raw pixel count of the stored image.
func (i PageImage) PixelArea() int {
	return i.WidthPx * i.HeightPx
}

// Page describes one page of the source document.
type Page struct {
	Number    int         `json:"number"` // 1-indexed
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
	WordCount int         `json:"word_count"`
	Text      string      `json:"-"`
	Images    []PageImage `json:"-"`
}

// Area returns the page area in page units.
func (p Page) Area() float64 {
	return p.Width * p.Height
}

// Document is the enrichment record for one source file. Field mutation
// goes through the merge setters and is serialized by the document lock;
// reads of already-merged values are safe between passes because the
// scheduler never runs two passes of the same document's write phase
// concurrently.
type Document struct {
	mu sync.Mutex

	ID       string
	FileName string
	AbsDir   string
	BaseDir  string
	RelPath  string

	Title        Field
	Summary      Field
	CreationDate Field // canonical YYYY-MM-DD
	Creator      Field
	Importance   Field // integer 0-10 rendered as string

	Tags []Tag

	Pages         []Page
	ImageCoverage float64 // percent of page area covered by images
	ModTime       time.Time
}

// New creates a record for the file at path, relative to baseDir, and runs
// the conventional extraction over the filename and relative path. Reading
// page content is the reader's job (internal/pdf).
func New(path, baseDir string) *Document {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		absBase = baseDir
	}
	dir := filepath.Dir(abs)
	rel, err := filepath.Rel(absBase, dir)
	if err != nil {
		rel = "."
	}

	d := &Document{
		ID:       fingerprintPath(abs),
		FileName: filepath.Base(abs),
		AbsDir:   dir,
		BaseDir:  absBase,
		RelPath:  rel,
	}
	d.extractFromFileName()
	d.extractFromRelPath()
	return d
}

// fingerprintPath derives a stable short identifier from the absolute path.
func fingerprintPath(abs string) string {
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:8])
}

// AbsolutePath returns the full path of the source file.
func (d *Document) AbsolutePath() string {
	return filepath.Join(d.AbsDir, d.FileName)
}

var nonTitleChars = regexp.MustCompile(`[^\w\s.-]`)

// extractFromFileName pulls a creation date (exact match, locked
// confidence) and a fallback title (moderate confidence) out of the
// filename.
func (d *Document) extractFromFileName() {
	if date, ok := ParseDate(d.FileName); ok {
		d.SetCreationDate(date, ConfidenceLocked, SourceConventional)
	}

	name := stripDates(d.FileName)
	name = nonTitleChars.ReplaceAllString(name, "")
	name = strings.TrimSuffix(name, ".pdf")
	name = strings.Trim(name, "-_ .")
	if name != "" {
		d.SetTitle(name, 6, SourceConventional)
	}
}

// extractFromRelPath turns each directory segment of the relative path
// into a tag. These bypass the merge floor: path segments are the seed
// taxonomy of the archive.
func (d *Document) extractFromRelPath() {
	for _, seg := range strings.Split(d.RelPath, string(filepath.Separator)) {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		d.Tags = append(d.Tags, Tag{Name: seg, Confidence: 6})
	}
}

// SetTitle merges a proposed title. Reports whether the field changed.
func (d *Document) SetTitle(value string, confidence int, source Source) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := mergeField(d.Title, value, confidence, source)
	d.Title = f
	return ok
}

// SetSummary merges a proposed summary.
func (d *Document) SetSummary(value string, confidence int, source Source) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := mergeField(d.Summary, value, confidence, source)
	d.Summary = f
	return ok
}

// SetCreationDate merges a proposed creation date. Values that do not
// contain a recognizable date are rejected.
func (d *Document) SetCreationDate(value string, confidence int, source Source) bool {
	date, ok := ParseDate(value)
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, changed := mergeField(d.CreationDate, date, confidence, source)
	d.CreationDate = f
	return changed
}

// SetCreator merges a proposed creator/issuer.
func (d *Document) SetCreator(value string, confidence int, source Source) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := mergeField(d.Creator, value, confidence, source)
	d.Creator = f
	return ok
}

// SetImportance merges a proposed importance rating (0-10).
func (d *Document) SetImportance(value int, confidence int, source Source) bool {
	if value < 0 || value > 10 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := mergeField(d.Importance, strconv.Itoa(value), confidence, source)
	d.Importance = f
	return ok
}

// AddTags merges proposed tags through the confidence floor.
func (d *Document) AddTags(tags []Tag) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Tags = mergeTags(d.Tags, tags)
}

// TagNames returns the current tag names in order.
func (d *Document) TagNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		names = append(names, t.Name)
	}
	return names
}

// ApplyTagReplacements renames tags per the replacement map. An empty
// replacement drops the tag. Duplicates produced by renaming collapse to
// the highest confidence.
func (d *Document) ApplyTagReplacements(replacements map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Tag
	index := make(map[string]int)
	for _, t := range d.Tags {
		name := t.Name
		if repl, ok := replacements[name]; ok {
			name = repl
		}
		if name == "" {
			continue
		}
		if i, ok := index[name]; ok {
			if t.Confidence > out[i].Confidence {
				out[i].Confidence = t.Confidence
			}
			continue
		}
		index[name] = len(out)
		out = append(out, Tag{Name: name, Confidence: t.Confidence})
	}
	d.Tags = out
}

// AggregateConfidence is the single filtering score for the document:
// the mean of all tracked field confidences, capped by the individual
// confidences of the two critical fields (title, creation date).
func (d *Document) AggregateConfidence() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Only fields that carry a value are tracked; absent fields do not
	// drag the mean down, they just leave the critical-field caps at zero.
	var confs []int
	for _, f := range []Field{d.Title, d.Summary, d.CreationDate, d.Creator, d.Importance} {
		if c := f.effectiveConfidence(); c > ConfidenceAbsent {
			confs = append(confs, c)
		}
	}
	for _, t := range d.Tags {
		confs = append(confs, t.Confidence)
	}
	if len(confs) == 0 {
		return 0
	}

	sum := 0
	for _, c := range confs {
		sum += c
	}
	mean := float64(sum) / float64(len(confs))

	idx := mean
	if tc := float64(max(d.Title.effectiveConfidence(), 0)); tc < idx {
		idx = tc
	}
	if dc := float64(max(d.CreationDate.effectiveConfidence(), 0)); dc < idx {
		idx = dc
	}
	return idx
}

// HasSufficientInformation reports whether the critical fields are both
// at or above the given threshold.
func (d *Document) HasSufficientInformation(threshold int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Title.effectiveConfidence() >= threshold &&
		d.CreationDate.effectiveConfidence() >= threshold
}

// Text returns the concatenated page text.
func (d *Document) Text() string {
	var b strings.Builder
	for _, p := range d.Pages {
		b.WriteString(p.Text)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

// WordCount returns the number of meaningful words (3+ letters) across
// all pages.
func (d *Document) WordCount() int {
	n := 0
	for _, p := range d.Pages {
		n += p.WordCount
	}
	return n
}

// ShortDescription is the context block handed to analysis prompts.
func (d *Document) ShortDescription() string {
	return fmt.Sprintf("Filename: %s, Path: %s\nContent: %s", d.FileName, d.RelPath, d.Text())
}

// NewFileName renders the export filename: creation date (falling back to
// the modification date) plus the title.
func (d *Document) NewFileName() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	date := d.CreationDate.Value
	if date == "" && !d.ModTime.IsZero() {
		date = d.ModTime.Format(DateLayout)
	}
	title := d.Title.Value
	if title == "" {
		return d.FileName
	}
	if date == "" {
		return title + ".pdf"
	}
	return fmt.Sprintf("%s-%s.pdf", date, title)
}
