package passes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/providers"
)

// TextAnalysis asks the model for improved metadata from the document's
// page text and merges the answer through the confidence rules. Returns
// the spend incurred (zero on a cache hit).
func (r *Runner) TextAnalysis(ctx context.Context, doc *document.Document) (float64, error) {
	preamble := AnalysisUserPrompt(doc.PromptJSON())
	req, err := r.sel.Build(ctx, doc, preamble, false)
	if err != nil {
		return 0, fmt.Errorf("select text content for %s: %w", doc.ID, err)
	}

	model := r.cfg.TextModel
	if doc.WordCount() > r.cfg.LongDocWords {
		model = r.cfg.LongTextModel
	}

	var body strings.Builder
	body.WriteString(req.Preamble)
	renderPageText(&body, req.Parts)

	chatReq := &providers.ChatRequest{
		Model:       model,
		Temperature: 0.1,
		Messages: []providers.Message{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: body.String()},
		},
		ResponseFormat: &providers.ResponseFormat{
			Type:       "json_schema",
			Name:       "document_metadata",
			JSONSchema: analysisSchemaJSON,
		},
		RequestID: uuid.NewString(),
	}

	fp := cache.Fingerprint(KindText, model, fingerprintParts(req)...)
	payload, cost, err := r.chatJSON(ctx, KindText, fp, chatReq)
	if err != nil {
		return cost, err
	}

	rec, err := document.ParseRecord(payload)
	if err != nil {
		return cost, fmt.Errorf("decode text analysis for %s: %w", doc.ID, err)
	}
	doc.Apply(rec, document.SourceOptical)

	r.logger.Info("text analysis merged",
		"doc", doc.ID,
		"model", model,
		"confidence", fmt.Sprintf("%.1f", doc.AggregateConfidence()),
	)
	return cost, nil
}
