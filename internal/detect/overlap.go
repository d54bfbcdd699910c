package detect

import (
	"sort"
	"strings"

	"github.com/docforensics/xray/internal/config"
	"github.com/docforensics/xray/internal/engine"
	"github.com/docforensics/xray/internal/geometry"
)

// Candidate is a shape group together with the text spans it occludes.
type Candidate struct {
	Group *ShapeGroup
	Spans []engine.TextSpan

	// Text is the occluded text in reading order.
	Text string
}

// rowTolerance is the vertical slack, in page units, within which two spans
// are considered to sit on the same line when ordering recovered text.
const rowTolerance = 2.0

// resolveOverlaps pairs candidate covers with the text spans they occlude.
//
// Groups are visited from the most recently drawn backwards and each span is
// claimed at most once, so when bars are stacked on top of each other the
// text belongs to the topmost bar and the ones underneath drop out. A span
// counts as occluded by a group when some member shape covers more than the
// containment threshold of the span's expanded envelope AND the group was
// drawn at or after the span: a shape the text was printed on top of hides
// nothing. Groups that end up with no spans, and groups that are not opaque,
// produce no candidates.
func resolveOverlaps(groups []*ShapeGroup, spans []engine.TextSpan, cfg *config.Config) []Candidate {
	ordered := make([]*ShapeGroup, len(groups))
	copy(ordered, groups)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinDrawIndex > ordered[j].MinDrawIndex
	})

	claimed := make([]bool, len(spans))
	var cands []Candidate
	for _, g := range ordered {
		if !g.Opaque() {
			continue
		}

		var hits []engine.TextSpan
		for i, span := range spans {
			if claimed[i] {
				continue
			}
			if g.MinDrawIndex < span.DrawIndex {
				continue
			}
			env := glyphEnvelope(span, cfg.EnvelopeExpansion)
			if occludes(g, env, cfg.ContainmentThreshold) {
				hits = append(hits, span)
				claimed[i] = true
			}
		}
		if len(hits) == 0 {
			continue
		}

		cands = append(cands, Candidate{
			Group: g,
			Spans: hits,
			Text:  readingOrderText(hits),
		})
	}
	return cands
}

// occludes reports whether any member shape of the group covers more than
// threshold of the envelope's area. Member shapes are tested individually
// rather than against the group bounding box: a multi-line bar's bounding
// box spans the gaps between its rectangles and would claim text that is
// plainly visible between them.
func occludes(g *ShapeGroup, env geometry.Rect, threshold float64) bool {
	for _, s := range g.Shapes {
		if env.ContainmentFraction(s.BBox) > threshold {
			return true
		}
	}
	return false
}

// readingOrderText concatenates span texts top to bottom, then left to
// right within a line.
func readingOrderText(spans []engine.TextSpan) string {
	ordered := make([]engine.TextSpan, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].BBox, ordered[j].BBox
		if diff := a.Y0 - b.Y0; diff < -rowTolerance || diff > rowTolerance {
			return a.Y0 < b.Y0
		}
		return a.X0 < b.X0
	})

	parts := make([]string, 0, len(ordered))
	for _, s := range ordered {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
