// Package detect implements the bad-redaction detection pipeline: candidate
// cover extraction, glyph envelope adjustment, overlap resolution,
// color-uniformity verification and content classification, driven page by
// page by the Detector.
package detect

import (
	"github.com/docforensics/xray/internal/config"
	"github.com/docforensics/xray/internal/engine"
	"github.com/docforensics/xray/internal/geometry"
)

// ShapeGroup is a set of shapes emitted by one drawing operation, treated
// as a single candidate cover. Redaction bars are often painted as several
// adjacent rectangles in one operation; grouping keeps them one cover while
// the member boxes stay available so a bar never inherits the oversized
// bounding box of its whole drawing.
type ShapeGroup struct {
	Shapes       []engine.Shape
	BBox         geometry.Rect
	Fill         *engine.Color
	Alpha        float64
	MinDrawIndex int
}

// Opaque reports whether the group paints a solid fill: it has a fill color
// and full alpha. Translucent highlights and unfilled boxes hide nothing.
func (g *ShapeGroup) Opaque() bool {
	return g.Fill != nil && g.Alpha >= 1
}

// coverGroups filters a page's shapes down to plausible covers and groups
// them by originating drawing operation, preserving content-stream order.
//
// Shapes thinner than the configured minimum in either direction are rules
// and margin lines, not redaction bars. Shapes sitting entirely inside the
// header band are case stamps and captions. Shapes with no fill are kept:
// the overlap resolver rejects them explicitly rather than silently.
func coverGroups(shapes []engine.Shape, cfg *config.Config) []*ShapeGroup {
	var groups []*ShapeGroup
	byID := make(map[int]*ShapeGroup)

	for _, s := range shapes {
		box := s.BBox.Normalize()
		if box.Width() <= cfg.MinCoverWidth || box.Height() <= cfg.MinCoverHeight {
			continue
		}
		if box.Y1 <= cfg.HeaderCutoff {
			continue
		}

		g, ok := byID[s.GroupID]
		if !ok {
			g = &ShapeGroup{
				Fill:         s.Fill,
				Alpha:        s.Alpha,
				MinDrawIndex: s.DrawIndex,
				BBox:         box,
			}
			byID[s.GroupID] = g
			groups = append(groups, g)
		}
		g.Shapes = append(g.Shapes, s)
		g.BBox = g.BBox.Union(box)
		if s.DrawIndex < g.MinDrawIndex {
			g.MinDrawIndex = s.DrawIndex
		}
	}

	return groups
}
