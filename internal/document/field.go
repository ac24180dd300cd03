package document

// Source identifies where a field value came from.
type Source string

const (
	SourceConventional Source = "conventional" // filename, path, embedded metadata
	SourceOptical      Source = "optical"      // OCR-derived text analysis
	SourceVisual       Source = "visual"       // vision model analysis
	SourceManual       Source = "manual"       // user-supplied, locked
)

// Confidence bounds. A field at ConfidenceLocked is never replaced by an
// automated pass. ConfidenceAbsent is the implied confidence of a missing
// field, so any proposal replaces it.
const (
	ConfidenceAbsent = -1
	ConfidenceMin    = 0
	ConfidenceLocked = 10
)

// Field is a single metadata value with its confidence and provenance.
type Field struct {
	Value      string `json:"value"`
	Confidence int    `json:"confidence"`
	Source     Source `json:"source,omitempty"`
}

// Set returns true when a field with the given confidence is present.
func (f Field) Set() bool {
	return f.Confidence > ConfidenceAbsent && f.Value != ""
}

// effectiveConfidence treats an empty field as absent regardless of the
// stored confidence number.
func (f Field) effectiveConfidence() int {
	if f.Value == "" {
		return ConfidenceAbsent
	}
	return f.Confidence
}

// Tag is a keyword with its own confidence.
type Tag struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
}

func clampConfidence(c int) int {
	if c < ConfidenceMin {
		return ConfidenceMin
	}
	if c > ConfidenceLocked {
		return ConfidenceLocked
	}
	return c
}
