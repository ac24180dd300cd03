// Package passes implements the enrichment passes that run as scheduler
// tasks: OCR recovery of sparse pages, text analysis, image analysis, and
// cross-document tag consolidation. Every model call goes through the
// result cache and the provider rate limiter.
package passes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackzampolin/folio/internal/cache"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/selector"
)

// Pass kinds, used as scheduler task kinds and cache fingerprint domains.
const (
	KindOCR   = "ocr"
	KindText  = "text"
	KindImage = "image"
	KindTags  = "tags"
)

// Config tunes pass behavior.
type Config struct {
	TextModel     string // default analysis model
	LongTextModel string // takes over above LongDocWords
	VisionModel   string
	TagsModel     string

	// LongDocWords is the document word count at which text analysis
	// switches to the long-context model.
	LongDocWords int

	// OCRWordThreshold is the per-page meaningful word count below which a
	// page is considered sparse and handed to OCR.
	OCRWordThreshold int

	// RenderDPI is the resolution for page renders fed to OCR.
	RenderDPI int

	// ImageSubsumesText marks the text analysis task skipped once image
	// analysis has succeeded for the document.
	ImageSubsumesText bool

	Logger *slog.Logger
}

// Runner executes passes against one LLM client and one OCR provider.
type Runner struct {
	client     providers.LLMClient
	ocr        providers.OCRProvider
	store      *cache.Cache
	sel        *selector.Selector
	limiter    *providers.RateLimiter
	ocrLimiter *providers.RateLimiter
	render     selector.RenderFunc
	cfg        Config
	logger     *slog.Logger
}

// NewRunner wires a pass runner. render rasterizes pages for OCR; the
// selector carries its own render hook for clutter replacement.
func NewRunner(client providers.LLMClient, ocr providers.OCRProvider, store *cache.Cache,
	sel *selector.Selector, limiter *providers.RateLimiter, render selector.RenderFunc, cfg Config) *Runner {

	if cfg.TextModel == "" {
		cfg.TextModel = "gpt-4o-mini"
	}
	if cfg.LongTextModel == "" {
		cfg.LongTextModel = "gpt-4o"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}
	if cfg.TagsModel == "" {
		cfg.TagsModel = cfg.TextModel
	}
	if cfg.LongDocWords <= 0 {
		cfg.LongDocWords = 2000
	}
	if cfg.OCRWordThreshold <= 0 {
		cfg.OCRWordThreshold = 10
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 150
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Runner{
		client:  client,
		ocr:     ocr,
		store:   store,
		sel:     sel,
		limiter: limiter,
		render:  render,
		cfg:     cfg,
		logger:  cfg.Logger,
	}
	if r.limiter == nil {
		r.limiter = providers.NewRateLimiter(2.0)
	}
	if ocr != nil {
		r.ocrLimiter = providers.NewRateLimiter(ocr.RequestsPerSecond())
	}
	return r
}

// chatJSON runs one structured model call through the cache: hits return
// the stored payload at zero cost, misses wait on the rate limiter, call
// the client, account the spend, and write through.
func (r *Runner) chatJSON(ctx context.Context, kind, fingerprint string, req *providers.ChatRequest) (json.RawMessage, float64, error) {
	if entry, ok := r.store.Get(ctx, fingerprint); ok {
		r.logger.Debug("cache hit", "kind", kind, "model", req.Model)
		return entry.Payload, 0, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	res, err := r.client.Chat(ctx, req)
	if err != nil {
		if providers.IsRateLimit(err) {
			r.limiter.Record429()
		}
		return nil, 0, err
	}

	payload := res.ParsedJSON
	if len(payload) == 0 {
		payload, err = providers.ParseStructuredJSON(res.Content)
		if err != nil {
			return nil, res.CostUSD, fmt.Errorf("parse %s response: %w", kind, err)
		}
	}

	r.store.Ledger().RecordSpend(res.CostUSD, res.TotalTokens)
	if err := r.store.Put(ctx, fingerprint, payload, res.TotalTokens, res.CostUSD); err != nil {
		r.logger.Warn("cache write failed", "kind", kind, "error", err)
	}
	return payload, res.CostUSD, nil
}

// fingerprintParts flattens a selected request into cache key parts. Image
// bytes contribute their own digest so a re-render with different pixels
// misses.
func fingerprintParts(req *selector.Request) []string {
	parts := make([]string, 0, len(req.Parts)+1)
	parts = append(parts, req.Preamble)
	for _, p := range req.Parts {
		switch p.Kind {
		case selector.PartText:
			parts = append(parts, p.Text)
		case selector.PartImage:
			parts = append(parts, cache.FingerprintBytes(p.ImageData))
		}
	}
	return parts
}

var meaningfulWord = regexp.MustCompile(`\p{L}{3,}`)

// countWords counts meaningful words, same rule the reader applies when it
// fills Page.WordCount.
func countWords(text string) int {
	return len(meaningfulWord.FindAllString(text, -1))
}

// renderPageText flattens text parts into the user message body, labeled
// by page so the model can cite locations.
func renderPageText(b *strings.Builder, parts []selector.Part) {
	for _, p := range parts {
		if p.Kind != selector.PartText || p.Text == "" {
			continue
		}
		fmt.Fprintf(b, "\n\n--- page %d ---\n%s", p.Page, p.Text)
	}
}
