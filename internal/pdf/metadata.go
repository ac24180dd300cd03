package pdf

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/folio/internal/document"
)

// propertyPrefix namespaces the key/value pairs written into exported
// files so a later import can tell them apart from foreign properties.
const propertyPrefix = "folio_"

// properties renders the document's enriched metadata as PDF document
// properties, values annotated with their confidence.
func properties(doc *document.Document) map[string]string {
	r := doc.Snapshot()

	tags := make([]string, 0, len(r.Tags))
	for i, name := range r.Tags {
		conf := 0.0
		if i < len(r.TagsConfidence) {
			conf = r.TagsConfidence[i]
		}
		tags = append(tags, fmt.Sprintf("%s (%d)", name, int(math.Round(conf))))
	}

	props := map[string]string{
		propertyPrefix + "title":         r.Title,
		propertyPrefix + "creation_date": r.CreationDate,
		propertyPrefix + "summary":       r.Summary,
		propertyPrefix + "creator":       r.Creator,
		propertyPrefix + "tags":          strings.Join(tags, ", "),

		propertyPrefix + "title_confidence":         formatConfidence(r.TitleConfidence),
		propertyPrefix + "creation_date_confidence": formatConfidence(r.CreationDateConfidence),
		propertyPrefix + "summary_confidence":       formatConfidence(r.SummaryConfidence),
		propertyPrefix + "creator_confidence":       formatConfidence(r.CreatorConfidence),
	}
	if r.ImportanceConfidence > 0 {
		props[propertyPrefix+"importance"] = formatConfidence(r.Importance)
		props[propertyPrefix+"importance_confidence"] = formatConfidence(r.ImportanceConfidence)
	}

	// Drop empty values; pdfcpu rejects them.
	for k, v := range props {
		if v == "" {
			delete(props, k)
		}
	}
	return props
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// annotatedTag matches the "name (confidence)" form written by properties.
var annotatedTag = regexp.MustCompile(`^(.*\S)\s*\((\d+)\)$`)

// parseConfidence reads a stored confidence, falling back when the value
// is absent or malformed.
func parseConfidence(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return int(math.Round(f))
}

// applyStoredProperties recovers metadata written into a PDF by a previous
// export, confidences included, and merges it into the record.
func applyStoredProperties(props map[string]string, doc *document.Document) {
	get := func(key string) string {
		return strings.TrimSpace(props[propertyPrefix+key])
	}
	conf := func(key string) int {
		return parseConfidence(get(key+"_confidence"), embeddedMetadataConfidence)
	}

	if v := get("title"); v != "" {
		doc.SetTitle(v, conf("title"), document.SourceConventional)
	}
	if v := get("summary"); v != "" {
		doc.SetSummary(v, conf("summary"), document.SourceConventional)
	}
	if v := get("creation_date"); v != "" {
		doc.SetCreationDate(v, conf("creation_date"), document.SourceConventional)
	}
	if v := get("creator"); v != "" {
		doc.SetCreator(v, conf("creator"), document.SourceConventional)
	}
	if v := get("importance"); v != "" {
		if imp, err := strconv.ParseFloat(v, 64); err == nil {
			doc.SetImportance(int(math.Round(imp)), conf("importance"), document.SourceConventional)
		}
	}

	if v := get("tags"); v != "" {
		doc.AddTags(parseStoredTags(strings.Split(v, ",")))
	}
}

// parseStoredTags turns stored tag strings, annotated or plain, back into
// tags. Plain names fall back to the embedded-metadata confidence.
func parseStoredTags(raw []string) []document.Tag {
	var tags []document.Tag
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, c := part, embeddedMetadataConfidence
		if m := annotatedTag.FindStringSubmatch(part); m != nil {
			name = m[1]
			c = parseConfidence(m[2], embeddedMetadataConfidence)
		}
		tags = append(tags, document.Tag{Name: name, Confidence: c})
	}
	return tags
}

// WriteMetadata stamps the enriched metadata into the file at path,
// in place.
func (r *Reader) WriteMetadata(doc *document.Document, path string) error {
	props := properties(doc)
	if len(props) == 0 {
		return nil
	}
	if err := api.AddPropertiesFile(path, "", props, r.conf); err != nil {
		return fmt.Errorf("writing properties to %s: %w", path, err)
	}
	return nil
}

// Export copies the document into destDir under its canonical
// "YYYY-MM-DD-Title.pdf" name and stamps the enriched metadata into the
// copy. Name collisions get a numeric suffix. Returns the written path.
func (r *Reader) Export(doc *document.Document, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	destPath := exportPath(destDir, doc.NewFileName())
	if err := copyFile(doc.AbsolutePath(), destPath); err != nil {
		return "", err
	}
	if err := r.WriteMetadata(doc, destPath); err != nil {
		os.Remove(destPath)
		return "", err
	}
	return destPath, nil
}

// exportPath picks a collision-free destination filename.
func exportPath(destDir, name string) string {
	base := strings.TrimSuffix(name, ".pdf")
	candidate := filepath.Join(destDir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(destDir, fmt.Sprintf("%s-%d.pdf", base, i))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return out.Close()
}
