package passes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/selector"
)

// ImageAnalysis runs the vision pass: selected page images plus whatever
// text fits alongside them, merged through the confidence rules. analyzed
// reports whether any image actually reached the model; a document without
// usable images returns (0, false, nil) and leaves text analysis to carry
// the document.
func (r *Runner) ImageAnalysis(ctx context.Context, doc *document.Document) (cost float64, analyzed bool, err error) {
	preamble := AnalysisUserPrompt(doc.PromptJSON())
	req, err := r.sel.Build(ctx, doc, preamble, true)
	if err != nil {
		return 0, false, fmt.Errorf("select image content for %s: %w", doc.ID, err)
	}

	var images [][]byte
	for _, p := range req.Parts {
		if p.Kind == selector.PartImage {
			images = append(images, p.ImageData)
		}
	}
	if len(images) == 0 {
		r.logger.Debug("no usable images, skipping vision pass", "doc", doc.ID)
		return 0, false, nil
	}

	var body strings.Builder
	body.WriteString(req.Preamble)
	renderPageText(&body, req.Parts)

	chatReq := &providers.ChatRequest{
		Model:       r.cfg.VisionModel,
		Temperature: 0.1,
		Messages: []providers.Message{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: body.String(), Images: images},
		},
		ResponseFormat: &providers.ResponseFormat{
			Type:       "json_schema",
			Name:       "document_metadata",
			JSONSchema: analysisSchemaJSON,
		},
		RequestID: uuid.NewString(),
	}

	fp := cache.Fingerprint(KindImage, r.cfg.VisionModel, fingerprintParts(req)...)
	payload, cost, err := r.chatJSON(ctx, KindImage, fp, chatReq)
	if err != nil {
		return cost, false, err
	}

	rec, err := document.ParseRecord(payload)
	if err != nil {
		return cost, false, fmt.Errorf("decode image analysis for %s: %w", doc.ID, err)
	}
	doc.Apply(rec, document.SourceVisual)

	r.logger.Info("image analysis merged",
		"doc", doc.ID,
		"model", r.cfg.VisionModel,
		"images", len(images),
		"confidence", fmt.Sprintf("%.1f", doc.AggregateConfidence()),
	)
	return cost, true, nil
}
