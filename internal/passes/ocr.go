package passes

import (
	"context"
	"fmt"

	"github.com/jackzampolin/folio/internal/document"
)

// NeedsOCR reports whether any page of the document is sparse enough to
// warrant OCR.
func (r *Runner) NeedsOCR(doc *document.Document) bool {
	for _, p := range doc.Pages {
		if p.WordCount < r.cfg.OCRWordThreshold {
			return true
		}
	}
	return false
}

// OCR renders each sparse page and runs it through the OCR provider. The
// recognized text replaces the page text only when it recovers more words
// than the embedded layer already had. Pages that fail to render are
// skipped; provider errors abort the pass so the scheduler can retry.
// Page mutation is safe here because the analysis tasks of the same
// document depend on this one.
func (r *Runner) OCR(ctx context.Context, doc *document.Document) error {
	if r.ocr == nil {
		return fmt.Errorf("no OCR provider configured")
	}
	if r.render == nil {
		return fmt.Errorf("no page renderer configured")
	}

	for i := range doc.Pages {
		page := &doc.Pages[i]
		if page.WordCount >= r.cfg.OCRWordThreshold {
			continue
		}

		data, err := r.render(ctx, doc.AbsolutePath(), page.Number, r.cfg.RenderDPI)
		if err != nil {
			r.logger.Warn("page render failed, skipping OCR",
				"doc", doc.ID, "page", page.Number, "error", err)
			continue
		}

		if r.ocrLimiter != nil {
			if err := r.ocrLimiter.Wait(ctx); err != nil {
				return err
			}
		}

		res, err := r.ocr.ProcessImage(ctx, data, page.Number)
		if err != nil {
			return fmt.Errorf("ocr page %d of %s: %w", page.Number, doc.ID, err)
		}

		recovered := countWords(res.Text)
		if recovered > page.WordCount {
			page.Text = res.Text
			page.WordCount = recovered
			r.logger.Debug("ocr recovered page text",
				"doc", doc.ID, "page", page.Number, "words", recovered)
		}
	}
	return nil
}
