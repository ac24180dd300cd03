package selector

import (
	"bytes"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"
)

// decodeDims reads an image header without decoding pixels.
func decodeDims(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// downscaleToFit shrinks a candidate to the smallest tile band. Returns
// false when even a single tile exceeds the budget or the bytes cannot be
// decoded.
func downscaleToFit(c imageCandidate, budget int) (imageCandidate, bool) {
	smallest := imageTokens(tileEdgePx, tileEdgePx)
	if smallest > budget {
		return c, false
	}
	if c.widthPx <= tileEdgePx && c.heightPx <= tileEdgePx {
		c.tokens = smallest
		return c, true
	}

	src, _, err := image.Decode(bytes.NewReader(c.data))
	if err != nil {
		return c, false
	}

	w, h := fitWithin(c.widthPx, c.heightPx, tileEdgePx)
	dst := resizeNearest(src, w, h)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return c, false
	}

	c.data = buf.Bytes()
	c.widthPx = w
	c.heightPx = h
	c.area = w * h
	c.tokens = imageTokens(w, h)
	return c, true
}

// fitWithin scales dimensions to fit a square bound, preserving aspect.
func fitWithin(w, h, bound int) (int, int) {
	if w >= h {
		nh := h * bound / w
		if nh < 1 {
			nh = 1
		}
		return bound, nh
	}
	nw := w * bound / h
	if nw < 1 {
		nw = 1
	}
	return nw, bound
}

// resizeNearest is a nearest-neighbor resample. Quality is irrelevant
// here: the point is fitting the smallest tile, and vision models do not
// reward interpolation on document scans.
func resizeNearest(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sb.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
