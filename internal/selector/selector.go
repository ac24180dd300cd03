// Package selector builds the content payload of an analysis pass: which
// page texts and images enter the request, in reading order, under a token
// budget. Text is trimmed before images are dropped, the instructional
// preamble is never touched, and a budget too small for even the minimal
// payload aborts the pass instead of silently sending nothing.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/providers"
)

// ErrBudgetExceeded aborts a pass whose minimal encoding cannot fit: the
// preamble alone blows the budget, or image candidates exist but not even
// a single smallest-tile image fits next to the preamble.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// PartKind distinguishes the two content part types.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one ordered element of a request payload.
type Part struct {
	Page int
	Kind PartKind

	Text string // PartText

	ImageData      []byte // PartImage
	WidthPx        int
	HeightPx       int
	FullPageRender bool

	Tokens int
}

// Request is the assembled payload for one pass over one document.
type Request struct {
	Preamble        string
	Parts           []Part
	EstimatedTokens int
}

// Events receives informational adjustment notices: trimming, downscaling,
// skipping. Observation only, never an error path.
type Events interface {
	SelectionAdjusted(docID, reason, detail string)
}

type nopEvents struct{}

func (nopEvents) SelectionAdjusted(string, string, string) {}

// RenderFunc rasterizes one page of the file at path. Wired to the
// document reader; stubbed in tests.
type RenderFunc func(ctx context.Context, path string, pageNum, dpi int) ([]byte, error)

// Options tune the selection policy.
type Options struct {
	Budget        int // token budget per request
	PriorityPages int // earlier pages rank ahead of everything else
	MinEdgePx     int // images with a shorter edge are decorative icons
	ClutterLimit  int // small images per page before a full-page render wins
	RenderDPI     int // resolution for full-page renders

	// ScannedCoverage is the image-coverage percentage at or above which
	// the document is treated as a scan: one image per page, largest wins.
	ScannedCoverage float64

	Logger *slog.Logger
	Events Events
	Render RenderFunc
}

// Selector builds pass payloads.
type Selector struct {
	opts Options
}

// New creates a selector, filling unset options with defaults.
func New(opts Options) *Selector {
	if opts.Budget <= 0 {
		opts.Budget = 16000
	}
	if opts.PriorityPages <= 0 {
		opts.PriorityPages = 2
	}
	if opts.MinEdgePx <= 0 {
		opts.MinEdgePx = 300
	}
	if opts.ClutterLimit <= 0 {
		opts.ClutterLimit = 4
	}
	if opts.RenderDPI <= 0 {
		opts.RenderDPI = 150
	}
	if opts.ScannedCoverage <= 0 {
		opts.ScannedCoverage = 95
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = nopEvents{}
	}
	return &Selector{opts: opts}
}

// Build assembles the request payload for a pass over doc. withImages
// controls whether image candidates are considered at all (text-only
// passes skip the whole image pipeline).
func (s *Selector) Build(ctx context.Context, doc *document.Document, preamble string, withImages bool) (*Request, error) {
	budget := s.opts.Budget
	preambleTokens := providers.EstimateTextTokens(preamble)
	if preambleTokens > budget {
		s.opts.Events.SelectionAdjusted(doc.ID, "abort",
			fmt.Sprintf("preamble alone needs %d tokens against a budget of %d", preambleTokens, budget))
		return nil, fmt.Errorf("%w: preamble %d tokens, budget %d", ErrBudgetExceeded, preambleTokens, budget)
	}

	texts := textCandidates(doc)
	textTokens := 0
	for _, t := range texts {
		textTokens += t.Tokens
	}

	var images []imageCandidate
	if withImages {
		images = s.imageCandidates(ctx, doc)
	}

	// Images are admitted by rank while they fit alongside the full text.
	remaining := budget - preambleTokens - textTokens
	admitted, skippedAt := admitImages(images, remaining)

	if len(admitted) == 0 && len(images) > 0 {
		// Nothing fit next to the full text. Text gives way before any
		// image is dropped: re-admit against the budget freed of text and
		// let the trim below reclaim the room. If even that admits
		// nothing, downscale the top candidate to the smallest tile, and
		// abort when not even that fits.
		imageBudget := budget - preambleTokens
		admitted, skippedAt = admitImages(images, imageBudget)
		if len(admitted) == 0 {
			small, ok := downscaleToFit(images[0], imageBudget)
			if !ok {
				s.opts.Events.SelectionAdjusted(doc.ID, "abort",
					fmt.Sprintf("smallest image encoding needs %d tokens against %d left after the preamble",
						imageTokens(tileEdgePx, tileEdgePx), imageBudget))
				return nil, fmt.Errorf("%w: no image fits within %d tokens left after the preamble",
					ErrBudgetExceeded, imageBudget)
			}
			admitted = []imageCandidate{small}
			s.opts.Events.SelectionAdjusted(doc.ID, "downscale",
				fmt.Sprintf("page %d image reduced to %dx%d to fit %d tokens",
					small.page, small.widthPx, small.heightPx, imageBudget))
		}
	}
	if skippedAt >= 0 {
		s.opts.Events.SelectionAdjusted(doc.ID, "skip",
			fmt.Sprintf("%d of %d candidate images dropped for budget", len(images)-len(admitted), len(images)))
	}

	imageTokensTotal := 0
	for _, img := range admitted {
		imageTokensTotal += img.tokens
	}

	// Trim text proportionally if the assembled set still overflows.
	available := budget - preambleTokens - imageTokensTotal
	if textTokens > available {
		texts = trimProportionally(texts, textTokens, available)
		trimmed := 0
		for _, t := range texts {
			trimmed += t.Tokens
		}
		s.opts.Events.SelectionAdjusted(doc.ID, "trim",
			fmt.Sprintf("page text trimmed from %d to %d tokens", textTokens, trimmed))
		textTokens = trimmed
	}

	req := &Request{
		Preamble:        preamble,
		EstimatedTokens: preambleTokens + textTokens + imageTokensTotal,
	}
	req.Parts = interleave(texts, admitted)
	return req, nil
}

// textCandidates returns one text part per non-empty page, in page order.
func textCandidates(doc *document.Document) []Part {
	var parts []Part
	for _, p := range doc.Pages {
		if p.Text == "" {
			continue
		}
		parts = append(parts, Part{
			Page:   p.Number,
			Kind:   PartText,
			Text:   p.Text,
			Tokens: providers.EstimateTextTokens(p.Text),
		})
	}
	return parts
}

// admitImages walks the ranked candidates and admits them while they fit.
// Admission stops at the first candidate that would overflow; returns the
// stop index, or -1 when everything fit.
func admitImages(ranked []imageCandidate, budget int) ([]imageCandidate, int) {
	var admitted []imageCandidate
	for i, img := range ranked {
		if img.tokens > budget {
			return admitted, i
		}
		budget -= img.tokens
		admitted = append(admitted, img)
	}
	return admitted, -1
}

// trimProportionally cuts every text part by the same ratio so the total
// fits available tokens. Token estimates translate back to characters at
// the same 4:1 ratio used to estimate them.
func trimProportionally(texts []Part, total, available int) []Part {
	if available <= 0 {
		for i := range texts {
			texts[i].Text = ""
			texts[i].Tokens = 0
		}
		return texts
	}
	for i := range texts {
		runes := []rune(texts[i].Text)
		keep := len(runes) * available / total
		if keep < len(runes) {
			texts[i].Text = string(runes[:keep])
		}
		texts[i].Tokens = providers.EstimateTextTokens(texts[i].Text)
	}
	return texts
}

// interleave merges text and image parts into reading order: each page's
// text precedes that page's images.
func interleave(texts []Part, images []imageCandidate) []Part {
	byPage := make(map[int][]Part)
	maxPage := 0
	for _, t := range texts {
		if t.Text == "" {
			continue
		}
		byPage[t.Page] = append(byPage[t.Page], t)
		if t.Page > maxPage {
			maxPage = t.Page
		}
	}
	for _, img := range images {
		byPage[img.page] = append(byPage[img.page], Part{
			Page:           img.page,
			Kind:           PartImage,
			ImageData:      img.data,
			WidthPx:        img.widthPx,
			HeightPx:       img.heightPx,
			FullPageRender: img.fullPage,
			Tokens:         img.tokens,
		})
		if img.page > maxPage {
			maxPage = img.page
		}
	}

	var out []Part
	for page := 1; page <= maxPage; page++ {
		out = append(out, byPage[page]...)
	}
	return out
}
