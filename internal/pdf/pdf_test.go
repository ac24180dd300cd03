package pdf

import (
	"testing"

	"github.com/jackzampolin/folio/internal/document"
)

func TestCountWords(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a an ok", 0},
		{"the quick brown fox", 4},
		{"Rechnung für März 2021", 3},
	}
	for _, tc := range cases {
		if got := countWords(tc.in); got != tc.want {
			t.Errorf("countWords(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestExtractedImagePagePattern(t *testing.T) {
	cases := map[string]string{
		"scan_3_Im0.png":        "3",
		"my_doc_12_Image1.jpg":  "12",
		"underscored_name_1_X.png": "1",
	}
	for name, want := range cases {
		m := extractedImagePage.FindStringSubmatch(name)
		if m == nil || m[1] != want {
			t.Errorf("page from %q = %v, want %s", name, m, want)
		}
	}
	if m := extractedImagePage.FindStringSubmatch("noise.txt"); m != nil {
		t.Errorf("unexpected match for plain filename: %v", m)
	}
}

func TestImageCoverage(t *testing.T) {
	pages := []document.Page{
		{Number: 1, Width: 100, Height: 100, Images: []document.PageImage{{Area: 10000}}}, // fully covered
		{Number: 2, Width: 100, Height: 100},                                              // empty
	}
	if got := imageCoverage(pages); got != 50 {
		t.Errorf("coverage = %v, want 50", got)
	}

	// Oversized image areas are capped at the page area.
	capped := []document.Page{
		{Number: 1, Width: 10, Height: 10, Images: []document.PageImage{{Area: 1e6}}},
	}
	if got := imageCoverage(capped); got != 100 {
		t.Errorf("capped coverage = %v, want 100", got)
	}

	if got := imageCoverage(nil); got != 0 {
		t.Errorf("empty coverage = %v, want 0", got)
	}
}

func TestProperties(t *testing.T) {
	doc := document.New("/a/2021-05-01-Lease.pdf", "/a")
	doc.SetSummary("A lease agreement.", 8, document.SourceVisual)
	doc.AddTags([]document.Tag{{Name: "housing", Confidence: 9}})

	props := properties(doc)

	if props[propertyPrefix+"creation_date"] != "2021-05-01" {
		t.Errorf("creation_date = %q", props[propertyPrefix+"creation_date"])
	}
	if props[propertyPrefix+"summary_confidence"] != "8" {
		t.Errorf("summary_confidence = %q", props[propertyPrefix+"summary_confidence"])
	}
	if props[propertyPrefix+"tags"] != "housing (9)" {
		t.Errorf("tags = %q", props[propertyPrefix+"tags"])
	}
	if _, ok := props[propertyPrefix+"creator"]; ok {
		t.Error("empty creator should be dropped")
	}
	if _, ok := props[propertyPrefix+"importance"]; ok {
		t.Error("unset importance should be dropped")
	}
}

func TestPropertiesRoundTrip(t *testing.T) {
	doc := document.New("/a/2021-05-01-Lease.pdf", "/a")
	doc.SetTitle("Lease Agreement", 8, document.SourceVisual)
	doc.SetSummary("A lease agreement.", 8, document.SourceVisual)
	doc.SetCreator("ACME Housing", 7, document.SourceVisual)
	doc.SetImportance(6, 7, document.SourceVisual)
	doc.AddTags([]document.Tag{{Name: "housing", Confidence: 9}})

	props := properties(doc)

	fresh := &document.Document{}
	applyStoredProperties(props, fresh)

	if fresh.Title.Value != "Lease Agreement" || fresh.Title.Confidence != 8 {
		t.Errorf("title = %+v", fresh.Title)
	}
	if fresh.CreationDate.Value != "2021-05-01" || fresh.CreationDate.Confidence != 10 {
		t.Errorf("creation date = %+v", fresh.CreationDate)
	}
	if fresh.Summary.Confidence != 8 {
		t.Errorf("summary = %+v", fresh.Summary)
	}
	if fresh.Creator.Value != "ACME Housing" || fresh.Creator.Confidence != 7 {
		t.Errorf("creator = %+v", fresh.Creator)
	}
	if fresh.Importance.Value != "6" || fresh.Importance.Confidence != 7 {
		t.Errorf("importance = %+v", fresh.Importance)
	}
	if len(fresh.Tags) != 1 || fresh.Tags[0].Name != "housing" || fresh.Tags[0].Confidence != 9 {
		t.Errorf("tags = %+v", fresh.Tags)
	}
}

func TestApplyStoredPropertiesPlainTags(t *testing.T) {
	// Tags written without an annotation fall back to the embedded-metadata
	// confidence.
	props := map[string]string{
		propertyPrefix + "tags": "insurance, housing (8)",
	}

	fresh := &document.Document{}
	applyStoredProperties(props, fresh)

	if len(fresh.Tags) != 2 {
		t.Fatalf("tags = %+v", fresh.Tags)
	}
	if fresh.Tags[0].Name != "insurance" || fresh.Tags[0].Confidence != embeddedMetadataConfidence {
		t.Errorf("tag[0] = %+v", fresh.Tags[0])
	}
	if fresh.Tags[1].Name != "housing" || fresh.Tags[1].Confidence != 8 {
		t.Errorf("tag[1] = %+v", fresh.Tags[1])
	}
}
