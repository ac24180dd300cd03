package document

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Library is the in-memory collection of documents for one run. Adding the
// same source file twice merges the newer record into the older one through
// the confidence rules, so a JSON import and a fresh folder scan can be
// combined freely.
type Library struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewLibrary returns an empty collection.
func NewLibrary() *Library {
	return &Library{docs: make(map[string]*Document)}
}

// Add inserts a document, merging into an existing record when the source
// file is already known. Returns the canonical record for that file.
func (l *Library) Add(d *Document) *Document {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.docs[d.ID]; ok {
		existing.Apply(d.Snapshot(), SourceConventional)
		existing.AddTags(d.Tags)
		return existing
	}
	l.docs[d.ID] = d
	return d
}

// Get looks up a document by ID.
func (l *Library) Get(id string) (*Document, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.docs[id]
	return d, ok
}

// Len returns the number of documents.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.docs)
}

// Documents returns the collection sorted by relative path then filename,
// so output order is stable across runs.
func (l *Library) Documents() []*Document {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Document, 0, len(l.docs))
	for _, d := range l.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RelPath != out[j].RelPath {
			return out[i].RelPath < out[j].RelPath
		}
		return out[i].FileName < out[j].FileName
	})
	return out
}

// Incomplete returns the documents whose critical fields fall below the
// threshold.
func (l *Library) Incomplete(threshold int) []*Document {
	var out []*Document
	for _, d := range l.Documents() {
		if !d.HasSufficientInformation(threshold) {
			out = append(out, d)
		}
	}
	return out
}

// UniqueTags returns the distinct tag names across all documents, sorted.
func (l *Library) UniqueTags() []string {
	seen := make(map[string]struct{})
	for _, d := range l.Documents() {
		for _, name := range d.TagNames() {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ApplyTagReplacements applies a consolidation map to every document.
func (l *Library) ApplyTagReplacements(replacements map[string]string) {
	for _, d := range l.Documents() {
		d.ApplyTagReplacements(replacements)
	}
}

// libraryFile is the on-disk database shape.
type libraryFile struct {
	Documents []exportedDocument `json:"documents"`
}

type exportedDocument struct {
	AbsDir  string `json:"folder"`
	BaseDir string `json:"base_folder"`
	Record
}

// ExportJSON writes the collection as a JSON database.
func (l *Library) ExportJSON(w io.Writer) error {
	file := libraryFile{Documents: make([]exportedDocument, 0, l.Len())}
	for _, d := range l.Documents() {
		file.Documents = append(file.Documents, exportedDocument{
			AbsDir:  d.AbsDir,
			BaseDir: d.BaseDir,
			Record:  d.Snapshot(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encoding document database: %w", err)
	}
	return nil
}

// ImportJSON reads a JSON database and merges each record into the
// collection.
func (l *Library) ImportJSON(r io.Reader) error {
	var file libraryFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return fmt.Errorf("decoding document database: %w", err)
	}
	for _, e := range file.Documents {
		if e.AbsDir == "" || e.FileName == "" {
			return fmt.Errorf("document record missing folder or file_name")
		}
		base := e.BaseDir
		if base == "" {
			base = e.AbsDir
		}
		d := New(e.AbsDir+"/"+e.FileName, base)
		d.Apply(e.Record, SourceConventional)
		l.Add(d)
	}
	return nil
}
