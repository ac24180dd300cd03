package document

import (
	"encoding/json"
	"math"
)

// Record is the wire form of a document's metadata: the shape sent to the
// model inside analysis prompts, returned by the model, and used for JSON
// database import/export. Confidences ride next to their values so a
// re-import can rebuild provenance.
type Record struct {
	FileName string `json:"file_name,omitempty"`
	RelPath  string `json:"relative_path,omitempty"`

	Title                  string  `json:"title"`
	TitleConfidence        float64 `json:"title_confidence"`
	Summary                string  `json:"summary"`
	SummaryConfidence      float64 `json:"summary_confidence"`
	CreationDate           string  `json:"creation_date"`
	CreationDateConfidence float64 `json:"creation_date_confidence"`
	Creator                string  `json:"creator"`
	CreatorConfidence      float64 `json:"creator_confidence"`
	Importance             float64 `json:"importance"`
	ImportanceConfidence   float64 `json:"importance_confidence"`

	Tags           []string  `json:"tags"`
	TagsConfidence []float64 `json:"tags_confidence"`
}

// Snapshot renders the document's current state as a Record.
func (d *Document) Snapshot() Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := Record{
		FileName:               d.FileName,
		RelPath:                d.RelPath,
		Title:                  d.Title.Value,
		TitleConfidence:        float64(max(d.Title.effectiveConfidence(), 0)),
		Summary:                d.Summary.Value,
		SummaryConfidence:      float64(max(d.Summary.effectiveConfidence(), 0)),
		CreationDate:           d.CreationDate.Value,
		CreationDateConfidence: float64(max(d.CreationDate.effectiveConfidence(), 0)),
		Creator:                d.Creator.Value,
		CreatorConfidence:      float64(max(d.Creator.effectiveConfidence(), 0)),
		ImportanceConfidence:   float64(max(d.Importance.effectiveConfidence(), 0)),
		Tags:                   make([]string, 0, len(d.Tags)),
		TagsConfidence:         make([]float64, 0, len(d.Tags)),
	}
	if d.Importance.Value != "" {
		var imp float64
		if err := json.Unmarshal([]byte(d.Importance.Value), &imp); err == nil {
			r.Importance = imp
		}
	}
	for _, t := range d.Tags {
		r.Tags = append(r.Tags, t.Name)
		r.TagsConfidence = append(r.TagsConfidence, float64(t.Confidence))
	}
	return r
}

// PromptJSON renders the record as the JSON block embedded in analysis
// prompts.
func (d *Document) PromptJSON() string {
	b, err := json.Marshal(d.Snapshot())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Apply merges a record into the document through the confidence rules.
// Used for both model responses and database imports.
func (d *Document) Apply(r Record, source Source) {
	r = r.normalized()

	d.SetTitle(r.Title, int(math.Round(r.TitleConfidence)), source)
	d.SetSummary(r.Summary, int(math.Round(r.SummaryConfidence)), source)
	d.SetCreationDate(r.CreationDate, int(math.Round(r.CreationDateConfidence)), source)
	d.SetCreator(r.Creator, int(math.Round(r.CreatorConfidence)), source)
	if r.ImportanceConfidence > 0 {
		d.SetImportance(int(math.Round(r.Importance)), int(math.Round(r.ImportanceConfidence)), source)
	}

	tags := make([]Tag, 0, len(r.Tags))
	for i, name := range r.Tags {
		conf := 0.0
		if i < len(r.TagsConfidence) {
			conf = r.TagsConfidence[i]
		}
		tags = append(tags, Tag{Name: name, Confidence: int(math.Round(conf))})
	}
	d.AddTags(tags)
}

// normalized rescales confidences reported on a 0-1 scale to 0-10.
// Some models answer with fractions despite being asked for integers.
func (r Record) normalized() Record {
	maxConf := r.TitleConfidence
	for _, c := range append([]float64{
		r.SummaryConfidence, r.CreationDateConfidence,
		r.CreatorConfidence, r.ImportanceConfidence,
	}, r.TagsConfidence...) {
		if c > maxConf {
			maxConf = c
		}
	}
	if maxConf > 1.0 || maxConf == 0 {
		return r
	}

	scale := func(c float64) float64 { return math.Min(10, math.Round(c*10)) }
	r.TitleConfidence = scale(r.TitleConfidence)
	r.SummaryConfidence = scale(r.SummaryConfidence)
	r.CreationDateConfidence = scale(r.CreationDateConfidence)
	r.CreatorConfidence = scale(r.CreatorConfidence)
	r.ImportanceConfidence = scale(r.ImportanceConfidence)
	for i, c := range r.TagsConfidence {
		r.TagsConfidence[i] = scale(c)
	}
	return r
}

// ParseRecord decodes a model response into a Record. The response is
// expected to have passed the JSON guard already.
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
