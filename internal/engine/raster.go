package engine

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"
	"unicode"

	xdraw "golang.org/x/image/draw"

	"github.com/docforensics/xray/internal/geometry"
)

// Fraction of a glyph cell that is treated as ink when replaying text.
// Glyph interiors, not their full metric boxes: drawing whole boxes would
// make adjacent same-color text indistinguishable from a solid fill.
const (
	inkInsetX = 0.15
	inkInsetY = 0.20
)

// basePixelsPerUnit is the resolution of the replay grid. The display list
// is rendered on a fixed grid aligned to page units and then resampled to
// the caller's requested scale, which keeps coverage decisions independent
// of the requested resolution.
const basePixelsPerUnit = 2.0

// renderRegion replays the page display list - filled shapes composited in
// draw order with their fill alpha, text approximated as per-glyph ink
// boxes - onto a white background, clipped to the requested region.
//
// This is a painter's-algorithm replay, not a full PDF renderer: it is
// deterministic, free of anti-aliasing, and faithful to exactly the
// properties the color-uniformity check needs (what ends up on top, in what
// color, at what opacity).
func renderRegion(shapes []Shape, spans []TextSpan, clip geometry.Rect, scale float64) (image.Image, error) {
	clip = clip.Normalize()
	if clip.IsEmpty() {
		return nil, &EngineError{Op: "render", Err: fmt.Errorf("degenerate clip region")}
	}
	if scale <= 0 {
		return nil, &EngineError{Op: "render", Err: fmt.Errorf("scale must be positive, got %g", scale)}
	}

	outW := int(math.Ceil(clip.Width() * scale))
	outH := int(math.Ceil(clip.Height() * scale))
	if outW < 1 || outH < 1 {
		return nil, &EngineError{Op: "render",
			Err: fmt.Errorf("region %.1fx%.1f too small at scale %g", clip.Width(), clip.Height(), scale)}
	}

	baseW := maxInt(1, int(math.Ceil(clip.Width()*basePixelsPerUnit)))
	baseH := maxInt(1, int(math.Ceil(clip.Height()*basePixelsPerUnit)))
	base := image.NewRGBA(image.Rect(0, 0, baseW, baseH))
	draw.Draw(base, base.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for _, ev := range orderEvents(shapes, spans) {
		ev.paint(base, clip)
	}

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), base, base.Bounds(), xdraw.Src, nil)
	return out, nil
}

// paintEvent is one display-list entry in the replay order.
type paintEvent struct {
	drawIndex int
	shape     *Shape
	span      *TextSpan
}

func (ev paintEvent) paint(dst *image.RGBA, clip geometry.Rect) {
	if ev.shape != nil {
		paintShape(dst, clip, ev.shape)
		return
	}
	paintSpan(dst, clip, ev.span)
}

// orderEvents merges shapes and spans into a single draw-order sequence.
// The sort is stable over slices that are already in content-stream order,
// so replay is deterministic.
func orderEvents(shapes []Shape, spans []TextSpan) []paintEvent {
	events := make([]paintEvent, 0, len(shapes)+len(spans))
	for i := range shapes {
		events = append(events, paintEvent{drawIndex: shapes[i].DrawIndex, shape: &shapes[i]})
	}
	for i := range spans {
		events = append(events, paintEvent{drawIndex: spans[i].DrawIndex, span: &spans[i]})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].drawIndex < events[j].drawIndex
	})
	return events
}

func paintShape(dst *image.RGBA, clip geometry.Rect, s *Shape) {
	if s.Fill == nil || s.Alpha <= 0 {
		return
	}
	alpha := math.Min(s.Alpha, 1)
	fill := color.NRGBA{
		R: floatToByte(s.Fill.R),
		G: floatToByte(s.Fill.G),
		B: floatToByte(s.Fill.B),
		A: uint8(math.Round(alpha * 255)),
	}
	draw.Draw(dst, deviceRect(s.BBox, clip), image.NewUniform(fill), image.Point{}, draw.Over)
}

// paintSpan draws a span's glyphs as one inset ink box per non-space rune,
// in the span's fill color.
func paintSpan(dst *image.RGBA, clip geometry.Rect, t *TextSpan) {
	runes := []rune(t.Text)
	if len(runes) == 0 || t.BBox.IsEmpty() {
		return
	}
	fill := color.NRGBA{
		R: floatToByte(t.Color.R),
		G: floatToByte(t.Color.G),
		B: floatToByte(t.Color.B),
		A: 255,
	}

	cellW := t.BBox.Width() / float64(len(runes))
	insetY := t.BBox.Height() * inkInsetY
	for i, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		x0 := t.BBox.X0 + float64(i)*cellW
		cell := geometry.Rect{
			X0: x0 + cellW*inkInsetX,
			Y0: t.BBox.Y0 + insetY,
			X1: x0 + cellW*(1-inkInsetX),
			Y1: t.BBox.Y1 - insetY,
		}
		draw.Draw(dst, deviceRect(cell, clip), image.NewUniform(fill), image.Point{}, draw.Over)
	}
}

// deviceRect maps a page-space rectangle into the replay grid of a clip
// region. draw.Draw clips against the destination bounds, so callers never
// need to intersect manually.
func deviceRect(r geometry.Rect, clip geometry.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor((r.X0-clip.X0)*basePixelsPerUnit)),
		int(math.Floor((r.Y0-clip.Y0)*basePixelsPerUnit)),
		int(math.Ceil((r.X1-clip.X0)*basePixelsPerUnit)),
		int(math.Ceil((r.Y1-clip.Y0)*basePixelsPerUnit)),
	)
}

func floatToByte(f float64) uint8 {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(math.Round(f * 255))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
