package detect

import (
	"github.com/docforensics/xray/internal/engine"
	"github.com/docforensics/xray/internal/geometry"
)

// glyphEnvelope returns the box used for intersection testing of a span:
// its nominal glyph box expanded vertically by a fraction of the line
// height. Font metric boxes routinely undershoot ascenders and descenders,
// so a bar that visibly hides a line can miss the nominal box by a point or
// two. The expansion is vertical only; widening horizontally would let a
// bar claim neighboring text it never touches.
func glyphEnvelope(span engine.TextSpan, expansion float64) geometry.Rect {
	line := span.BBox.Height()
	if span.FontSize > line {
		line = span.FontSize
	}
	return span.BBox.ExpandY(expansion * line)
}
