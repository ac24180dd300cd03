package selector

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/jackzampolin/folio/internal/document"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func pageWithImage(t *testing.T, num int, text string, imgW, imgH int) document.Page {
	t.Helper()
	return document.Page{
		Number: num,
		Width:  612, Height: 792,
		Text: text,
		Images: []document.PageImage{{
			WidthPx: imgW, HeightPx: imgH,
			Data: makePNG(t, imgW, imgH),
		}},
	}
}

type recordingEvents struct {
	adjustments []string
}

func (r *recordingEvents) SelectionAdjusted(docID, reason, detail string) {
	r.adjustments = append(r.adjustments, reason)
}

func (r *recordingEvents) has(reason string) bool {
	for _, a := range r.adjustments {
		if a == reason {
			return true
		}
	}
	return false
}

func TestBuildReadingOrder(t *testing.T) {
	// Three pages, text and one 512x512 image each. The budget admits the
	// first two images (priority pages) but not the third.
	text := strings.Repeat("a", 400) // 100 tokens per page
	doc := &document.Document{ID: "doc1", Pages: []document.Page{
		pageWithImage(t, 1, text, 512, 512),
		pageWithImage(t, 2, text, 512, 512),
		pageWithImage(t, 3, text, 512, 512),
	}}

	events := &recordingEvents{}
	s := New(Options{Budget: 900, PriorityPages: 2, Events: events})

	preamble := strings.Repeat("p", 40) // 10 tokens
	req, err := s.Build(context.Background(), doc, preamble, true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []struct {
		page int
		kind PartKind
	}{
		{1, PartText}, {1, PartImage},
		{2, PartText}, {2, PartImage},
		{3, PartText},
	}
	if len(req.Parts) != len(want) {
		t.Fatalf("parts = %d, want %d: %+v", len(req.Parts), len(want), req.Parts)
	}
	for i, w := range want {
		if req.Parts[i].Page != w.page || req.Parts[i].Kind != w.kind {
			t.Errorf("part[%d] = page %d %s, want page %d %s",
				i, req.Parts[i].Page, req.Parts[i].Kind, w.page, w.kind)
		}
	}
	if !events.has("skip") {
		t.Error("dropping the third image should emit a skip event")
	}
	if req.EstimatedTokens > 900 {
		t.Errorf("estimate %d exceeds budget", req.EstimatedTokens)
	}
}

func TestBuildAbortsWhenPreambleExceedsBudget(t *testing.T) {
	doc := &document.Document{ID: "doc1"}
	events := &recordingEvents{}
	s := New(Options{Budget: 10, Events: events})

	_, err := s.Build(context.Background(), doc, strings.Repeat("p", 100), true)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if !events.has("abort") {
		t.Error("abort should be reported")
	}
}

func TestBuildTrimsTextProportionally(t *testing.T) {
	doc := &document.Document{ID: "doc1", Pages: []document.Page{
		{Number: 1, Text: strings.Repeat("a", 800)},  // 200 tokens
		{Number: 2, Text: strings.Repeat("b", 1600)}, // 400 tokens
	}}
	events := &recordingEvents{}
	s := New(Options{Budget: 310, Events: events})

	preamble := strings.Repeat("p", 40) // 10 tokens
	req, err := s.Build(context.Background(), doc, preamble, false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if req.Preamble != preamble {
		t.Error("preamble must never be trimmed")
	}
	if req.EstimatedTokens > 310 {
		t.Errorf("estimate %d exceeds budget", req.EstimatedTokens)
	}
	if !events.has("trim") {
		t.Error("trimming should emit an event")
	}

	// The 1:2 length ratio between the pages survives the trim.
	if len(req.Parts) != 2 {
		t.Fatalf("parts = %+v", req.Parts)
	}
	l1, l2 := len(req.Parts[0].Text), len(req.Parts[1].Text)
	if l1 == 0 || l2 == 0 {
		t.Fatal("trim should not empty the pages at this budget")
	}
	ratio := float64(l2) / float64(l1)
	if ratio < 1.8 || ratio > 2.2 {
		t.Errorf("trim ratio = %.2f, want ~2", ratio)
	}
}

func TestBuildAbortsWhenNoImageFitsEvenDownscaled(t *testing.T) {
	doc := &document.Document{ID: "doc1", Pages: []document.Page{
		pageWithImage(t, 1, "", 1024, 1024),
	}}
	events := &recordingEvents{}
	s := New(Options{Budget: 100, Events: events}) // below a single 512x512 tile

	_, err := s.Build(context.Background(), doc, "p", true)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if !events.has("abort") {
		t.Error("abort should be reported")
	}
}

func TestBuildTrimsTextBeforeDroppingImages(t *testing.T) {
	// The full text alone overflows the budget. The image must still be
	// admitted at full size, with the text trimmed to make room.
	doc := &document.Document{ID: "doc1", Pages: []document.Page{
		pageWithImage(t, 1, strings.Repeat("a", 4000), 512, 512), // 1000 + 255 tokens
	}}
	events := &recordingEvents{}
	s := New(Options{Budget: 800, Events: events})

	preamble := strings.Repeat("p", 40) // 10 tokens
	req, err := s.Build(context.Background(), doc, preamble, true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var img, text *Part
	for i := range req.Parts {
		switch req.Parts[i].Kind {
		case PartImage:
			img = &req.Parts[i]
		case PartText:
			text = &req.Parts[i]
		}
	}
	if img == nil {
		t.Fatal("image should be admitted; text gives way first")
	}
	if img.WidthPx != 512 || img.HeightPx != 512 {
		t.Errorf("dims = %dx%d, want the original 512x512", img.WidthPx, img.HeightPx)
	}
	if text == nil || text.Text == "" {
		t.Fatal("trimmed text part should survive")
	}
	if len(text.Text) >= 4000 {
		t.Error("text should have been trimmed")
	}
	if !events.has("trim") {
		t.Error("trimming should emit an event")
	}
	if req.EstimatedTokens > 800 {
		t.Errorf("estimate %d exceeds budget", req.EstimatedTokens)
	}
}

func TestBuildDownscalesWhenNoImageFits(t *testing.T) {
	doc := &document.Document{ID: "doc1", Pages: []document.Page{
		pageWithImage(t, 1, "", 1024, 1024), // 765 tokens
	}}
	events := &recordingEvents{}
	s := New(Options{Budget: 700, Events: events})

	req, err := s.Build(context.Background(), doc, "p", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var img *Part
	for i := range req.Parts {
		if req.Parts[i].Kind == PartImage {
			img = &req.Parts[i]
		}
	}
	if img == nil {
		t.Fatal("expected a downscaled image part")
	}
	if img.WidthPx != 512 || img.HeightPx != 512 {
		t.Errorf("dims = %dx%d, want 512x512", img.WidthPx, img.HeightPx)
	}
	if !events.has("downscale") {
		t.Error("downscaling should emit an event")
	}
	if req.EstimatedTokens > 700 {
		t.Errorf("estimate %d exceeds budget", req.EstimatedTokens)
	}
}

func TestBuildExcludesIcons(t *testing.T) {
	doc := &document.Document{ID: "doc1", Pages: []document.Page{
		{Number: 1, Text: "body", Images: []document.PageImage{
			{WidthPx: 100, HeightPx: 2000}, // short edge below threshold
		}},
	}}
	s := New(Options{Budget: 10000, MinEdgePx: 300})

	req, err := s.Build(context.Background(), doc, "p", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, p := range req.Parts {
		if p.Kind == PartImage {
			t.Error("icon-sized image should be excluded")
		}
	}
}

func TestBuildClutterTriggersFullPageRender(t *testing.T) {
	var imgs []document.PageImage
	for i := 0; i < 6; i++ {
		imgs = append(imgs, document.PageImage{WidthPx: 64, HeightPx: 64})
	}
	doc := &document.Document{ID: "doc1", FileName: "f.pdf", Pages: []document.Page{
		{Number: 1, Text: "body", Images: imgs},
	}}

	rendered := makePNG(t, 800, 1000)
	renderCalls := 0
	events := &recordingEvents{}
	s := New(Options{
		Budget:       10000,
		ClutterLimit: 4,
		Events:       events,
		Render: func(ctx context.Context, path string, pageNum, dpi int) ([]byte, error) {
			renderCalls++
			return rendered, nil
		},
	})

	req, err := s.Build(context.Background(), doc, "p", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if renderCalls != 1 {
		t.Fatalf("render calls = %d, want 1", renderCalls)
	}

	var full *Part
	for i := range req.Parts {
		if req.Parts[i].Kind == PartImage {
			full = &req.Parts[i]
		}
	}
	if full == nil || !full.FullPageRender {
		t.Fatalf("expected a full-page render part, got %+v", req.Parts)
	}
	if !events.has("clutter") {
		t.Error("clutter replacement should emit an event")
	}
}

func TestBuildScannedKeepsLargestPerPage(t *testing.T) {
	doc := &document.Document{ID: "doc1", ImageCoverage: 100, Pages: []document.Page{
		{Number: 1, Images: []document.PageImage{
			{WidthPx: 400, HeightPx: 400},
			{WidthPx: 1200, HeightPx: 1600},
		}},
	}}
	s := New(Options{Budget: 100000})

	req, err := s.Build(context.Background(), doc, "p", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var images []Part
	for _, p := range req.Parts {
		if p.Kind == PartImage {
			images = append(images, p)
		}
	}
	if len(images) != 1 {
		t.Fatalf("images = %d, want the single largest", len(images))
	}
	if images[0].WidthPx != 1200 {
		t.Errorf("kept %dx%d, want the 1200x1600 image", images[0].WidthPx, images[0].HeightPx)
	}
}

func TestImageTokens(t *testing.T) {
	if got := imageTokens(512, 512); got != imageBaseTokens+imageTileTokens {
		t.Errorf("single tile = %d", got)
	}
	if got := imageTokens(1024, 1024); got != imageBaseTokens+4*imageTileTokens {
		t.Errorf("four tiles = %d", got)
	}
	if got := imageTokens(513, 512); got != imageBaseTokens+2*imageTileTokens {
		t.Errorf("rounding up = %d", got)
	}
}
