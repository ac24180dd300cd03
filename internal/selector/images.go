package selector

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackzampolin/folio/internal/document"
)

// Vision token bands: a base charge plus a per-tile charge, tiles being
// fixed-size squares of the rendered image.
const (
	imageBaseTokens = 85
	imageTileTokens = 170
	tileEdgePx      = 512
)

// imageTokens estimates the token cost of an image from its tile count.
func imageTokens(widthPx, heightPx int) int {
	if widthPx <= 0 || heightPx <= 0 {
		return imageBaseTokens
	}
	tilesX := (widthPx + tileEdgePx - 1) / tileEdgePx
	tilesY := (heightPx + tileEdgePx - 1) / tileEdgePx
	return imageBaseTokens + imageTileTokens*tilesX*tilesY
}

// imageCandidate is one ranked image considered for inclusion.
type imageCandidate struct {
	page     int
	data     []byte
	widthPx  int
	heightPx int
	area     int // pixel area, ranking key
	fullPage bool
	tokens   int
}

// imageCandidates gathers and ranks the document's images: priority pages
// first (in page order), then everything else by rendered area. Icons
// below the minimum edge are excluded; cluttered pages are replaced by a
// single full-page render; scans contribute their largest image per page.
func (s *Selector) imageCandidates(ctx context.Context, doc *document.Document) []imageCandidate {
	scanned := doc.ImageCoverage >= s.opts.ScannedCoverage

	var candidates []imageCandidate
	for _, page := range doc.Pages {
		pageCandidates := s.pageCandidates(ctx, doc, page)
		if len(pageCandidates) == 0 {
			continue
		}
		if scanned {
			// A scan's page is one picture; extra embedded objects are
			// artifacts. Keep the largest.
			best := pageCandidates[0]
			for _, c := range pageCandidates[1:] {
				if c.area > best.area {
					best = c
				}
			}
			pageCandidates = []imageCandidate{best}
		}
		candidates = append(candidates, pageCandidates...)
	}

	priority := s.opts.PriorityPages
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].page <= priority, candidates[j].page <= priority
		if pi != pj {
			return pi
		}
		if pi && candidates[i].page != candidates[j].page {
			return candidates[i].page < candidates[j].page
		}
		return candidates[i].area > candidates[j].area
	})
	return candidates
}

// pageCandidates returns one page's eligible images, largest first, or a
// single full-page render when the page is cluttered with small images.
func (s *Selector) pageCandidates(ctx context.Context, doc *document.Document, page document.Page) []imageCandidate {
	var eligible []imageCandidate
	small := 0
	for _, img := range page.Images {
		if min(img.WidthPx, img.HeightPx) < s.opts.MinEdgePx {
			small++
			continue
		}
		eligible = append(eligible, imageCandidate{
			page:     page.Number,
			data:     img.Data,
			widthPx:  img.WidthPx,
			heightPx: img.HeightPx,
			area:     img.PixelArea(),
			tokens:   imageTokens(img.WidthPx, img.HeightPx),
		})
	}

	if small > s.opts.ClutterLimit {
		if render := s.renderFullPage(ctx, doc, page.Number); render != nil {
			s.opts.Events.SelectionAdjusted(doc.ID, "clutter",
				fmt.Sprintf("page %d: %d small images replaced by full-page render", page.Number, small))
			return []imageCandidate{*render}
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].area > eligible[j].area
	})
	return eligible
}

func (s *Selector) renderFullPage(ctx context.Context, doc *document.Document, pageNum int) *imageCandidate {
	if s.opts.Render == nil {
		return nil
	}
	data, err := s.opts.Render(ctx, doc.AbsolutePath(), pageNum, s.opts.RenderDPI)
	if err != nil {
		s.opts.Logger.Warn("full-page render failed",
			"doc", doc.ID, "page", pageNum, "error", err)
		return nil
	}
	w, h := decodeDims(data)
	if w == 0 || h == 0 {
		return nil
	}
	return &imageCandidate{
		page:     pageNum,
		data:     data,
		widthPx:  w,
		heightPx: h,
		area:     w * h,
		fullPage: true,
		tokens:   imageTokens(w, h),
	}
}
