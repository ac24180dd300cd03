package passes

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/scheduler"
	"github.com/jackzampolin/folio/internal/selector"
)

var analysisResponse = json.RawMessage(`{
	"title": "Insurance Policy", "title_confidence": 9,
	"summary": "Car insurance policy for 2022.", "summary_confidence": 8,
	"creation_date": "2022-01-15", "creation_date_confidence": 8,
	"creator": "ACME Insurance", "creator_confidence": 8,
	"importance": 6, "importance_confidence": 7,
	"tags": ["insurance", "car"], "tags_confidence": [8, 8]
}`)

func newTestRunner(t *testing.T, client providers.LLMClient, ocr providers.OCRProvider, render selector.RenderFunc) *Runner {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), cache.Options{})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	sel := selector.New(selector.Options{Budget: 100000})
	return NewRunner(client, ocr, store, sel, nil, render, Config{
		ImageSubsumesText: true,
	})
}

func testDoc(id string, pages ...document.Page) *document.Document {
	return &document.Document{
		ID:       id,
		FileName: id + ".pdf",
		RelPath:  ".",
		Pages:    pages,
	}
}

func TestTextAnalysisMergesResponse(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseJSON = analysisResponse
	r := newTestRunner(t, client, nil, nil)

	doc := testDoc("doc1", document.Page{Number: 1, Text: "policy text body", WordCount: 3})
	cost, err := r.TextAnalysis(context.Background(), doc)
	if err != nil {
		t.Fatalf("TextAnalysis: %v", err)
	}
	if cost <= 0 {
		t.Error("fresh call should report spend")
	}
	if doc.Title.Value != "Insurance Policy" || doc.Title.Confidence != 9 {
		t.Errorf("title = %+v", doc.Title)
	}
	if doc.Title.Source != document.SourceOptical {
		t.Errorf("source = %s, want optical", doc.Title.Source)
	}
	if len(doc.Tags) != 2 {
		t.Errorf("tags = %+v", doc.Tags)
	}
}

func TestTextAnalysisCacheHit(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseJSON = analysisResponse
	r := newTestRunner(t, client, nil, nil)

	// Identical documents fingerprint identically; the second call must be
	// served from the cache.
	doc1 := testDoc("doc1", document.Page{Number: 1, Text: "same text", WordCount: 2})
	doc2 := testDoc("doc1", document.Page{Number: 1, Text: "same text", WordCount: 2})

	if _, err := r.TextAnalysis(context.Background(), doc1); err != nil {
		t.Fatalf("first call: %v", err)
	}
	cost, err := r.TextAnalysis(context.Background(), doc2)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if cost != 0 {
		t.Errorf("cached call cost = %v, want 0", cost)
	}
	if n := client.RequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
	snap := r.store.Ledger().Snapshot()
	if snap.Hits != 1 || snap.Misses != 1 {
		t.Errorf("ledger hits/misses = %d/%d, want 1/1", snap.Hits, snap.Misses)
	}
	if doc2.Title.Value != "Insurance Policy" {
		t.Error("cached payload should still merge")
	}
}

func TestImageAnalysisMergesResponse(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseJSON = analysisResponse
	r := newTestRunner(t, client, nil, nil)

	doc := testDoc("doc1", document.Page{
		Number: 1,
		Images: []document.PageImage{{WidthPx: 512, HeightPx: 512, Data: []byte{1, 2, 3}}},
	})
	_, analyzed, err := r.ImageAnalysis(context.Background(), doc)
	if err != nil {
		t.Fatalf("ImageAnalysis: %v", err)
	}
	if !analyzed {
		t.Fatal("image should have been analyzed")
	}
	if doc.Title.Source != document.SourceVisual {
		t.Errorf("source = %s, want visual", doc.Title.Source)
	}
}

func TestImageAnalysisWithoutImages(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseJSON = analysisResponse
	r := newTestRunner(t, client, nil, nil)

	doc := testDoc("doc1", document.Page{Number: 1, Text: "text only", WordCount: 2})
	cost, analyzed, err := r.ImageAnalysis(context.Background(), doc)
	if err != nil {
		t.Fatalf("ImageAnalysis: %v", err)
	}
	if analyzed || cost != 0 {
		t.Errorf("analyzed=%v cost=%v, want false/0", analyzed, cost)
	}
	if n := client.RequestCount(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestOCRRecoversSparsePages(t *testing.T) {
	ocr := providers.NewMockOCRProvider()
	ocr.ResponseText = "recovered invoice text"
	render := func(ctx context.Context, path string, pageNum, dpi int) ([]byte, error) {
		return []byte("png"), nil
	}
	r := newTestRunner(t, providers.NewMockClient(), ocr, render)

	doc := testDoc("doc1",
		document.Page{Number: 1, Text: "", WordCount: 0},
		document.Page{Number: 2, Text: "dense embedded text layer here", WordCount: 50},
	)
	if err := r.OCR(context.Background(), doc); err != nil {
		t.Fatalf("OCR: %v", err)
	}

	if doc.Pages[0].Text == "" || doc.Pages[0].WordCount == 0 {
		t.Errorf("sparse page not recovered: %+v", doc.Pages[0])
	}
	if doc.Pages[1].Text != "dense embedded text layer here" {
		t.Error("dense page must keep its embedded text")
	}
	if n := ocr.RequestCount(); n != 1 {
		t.Errorf("ocr requests = %d, want 1", n)
	}
}

func TestConsolidateTags(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseJSON = json.RawMessage(`{"replacements": [{"old": "cars", "new": "car"}]}`)
	r := newTestRunner(t, client, nil, nil)

	lib := document.NewLibrary()
	d1 := testDoc("doc1")
	d1.Tags = []document.Tag{{Name: "car", Confidence: 8}}
	d2 := testDoc("doc2")
	d2.Tags = []document.Tag{{Name: "cars", Confidence: 7}, {Name: "insurance", Confidence: 9}}
	lib.Add(d1)
	lib.Add(d2)

	if _, err := r.ConsolidateTags(context.Background(), lib); err != nil {
		t.Fatalf("ConsolidateTags: %v", err)
	}

	got := lib.UniqueTags()
	want := []string{"car", "insurance"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags = %v, want %v", got, want)
		}
	}
}

func TestConsolidateTagsSkipsSmallVocabulary(t *testing.T) {
	client := providers.NewMockClient()
	r := newTestRunner(t, client, nil, nil)

	lib := document.NewLibrary()
	d := testDoc("doc1")
	d.Tags = []document.Tag{{Name: "car", Confidence: 8}}
	lib.Add(d)

	if _, err := r.ConsolidateTags(context.Background(), lib); err != nil {
		t.Fatalf("ConsolidateTags: %v", err)
	}
	if n := client.RequestCount(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestGraphOCRFailureDoesNotBlockVision(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseJSON = analysisResponse
	ocr := providers.NewMockOCRProvider()
	ocr.ShouldFail = true
	render := func(ctx context.Context, path string, pageNum, dpi int) ([]byte, error) {
		return []byte("png"), nil
	}
	r := newTestRunner(t, client, ocr, render)

	lib := document.NewLibrary()
	doc := testDoc("doc1", document.Page{
		Number:    1,
		Text:      "",
		WordCount: 0, // sparse enough to schedule OCR
		Images:    []document.PageImage{{WidthPx: 512, HeightPx: 512, Data: []byte{1}}},
	})
	lib.Add(doc)

	s := scheduler.New(scheduler.Config{Workers: 2, RetryAttempts: 1, RetryDelay: time.Millisecond})
	if err := r.BuildGraph(s, lib, GraphOptions{OCR: true, Text: true, Images: true, Tags: true}); err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if state, _ := s.TaskState(taskID("doc1", KindOCR)); state != scheduler.StateFailed {
		t.Errorf("ocr state = %s, want failed", state)
	}
	if state, _ := s.TaskState(taskID("doc1", KindImage)); state != scheduler.StateDone {
		t.Errorf("image state = %s: a broken text layer must not block vision", state)
	}
	if state, _ := s.TaskState(taskID("doc1", KindText)); state != scheduler.StateSkipped {
		t.Errorf("text state = %s, want skipped after successful vision pass", state)
	}
	if doc.Title.Value != "Insurance Policy" {
		t.Error("vision result should have merged")
	}
}

func TestBuildGraphNoPassesEnabled(t *testing.T) {
	r := newTestRunner(t, providers.NewMockClient(), nil, nil)

	lib := document.NewLibrary()
	lib.Add(testDoc("doc1", document.Page{Number: 1, Text: "body", WordCount: 1}))

	s := scheduler.New(scheduler.Config{Workers: 1, RetryAttempts: 1, RetryDelay: time.Millisecond})
	if err := r.BuildGraph(s, lib, GraphOptions{}); err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if n := s.TaskCount(); n != 0 {
		t.Errorf("tasks = %d, want none when every pass is disabled", n)
	}
}

func TestGraphVisionSubsumesText(t *testing.T) {
	client := providers.NewMockClient()
	client.ResponseJSON = analysisResponse
	r := newTestRunner(t, client, nil, nil)

	lib := document.NewLibrary()
	doc := testDoc("doc1", document.Page{
		Number:    1,
		Text:      "some embedded text",
		WordCount: 50,
		Images:    []document.PageImage{{WidthPx: 512, HeightPx: 512, Data: []byte{1}}},
	})
	lib.Add(doc)

	s := scheduler.New(scheduler.Config{Workers: 2, RetryAttempts: 1, RetryDelay: time.Millisecond})
	if err := r.BuildGraph(s, lib, GraphOptions{Text: true, Images: true, Tags: true}); err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if state, _ := s.TaskState(taskID("doc1", KindImage)); state != scheduler.StateDone {
		t.Errorf("image state = %s", state)
	}
	if state, _ := s.TaskState(taskID("doc1", KindText)); state != scheduler.StateSkipped {
		t.Errorf("text state = %s, want skipped after successful vision pass", state)
	}
	if state, _ := s.TaskState(TagsTaskID); state != scheduler.StateDone {
		t.Errorf("tags state = %s", state)
	}
	if doc.Title.Value != "Insurance Policy" {
		t.Error("vision result should have merged")
	}
}
