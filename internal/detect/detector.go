package detect

import (
	"fmt"
	"log"

	"github.com/docforensics/xray/internal/config"
	"github.com/docforensics/xray/internal/engine"
)

// BBox is a rectangle serialized as [x0, y0, x1, y1] in top-left-origin
// page units.
type BBox [4]float64

// Redaction is one recoverable redaction: the bounding box of the covering
// shape group and the text found underneath it.
type Redaction struct {
	BBox BBox   `json:"bbox"`
	Text string `json:"text"`
}

// Result maps 1-based page numbers to the redactions found on each page.
// Every processed page is present, with an empty list when nothing was
// found, so consumers can tell "page was clean" from "page was skipped".
type Result map[int][]Redaction

// HasRedactions reports whether any page carries at least one redaction.
func (r Result) HasRedactions() bool {
	for _, list := range r {
		if len(list) > 0 {
			return true
		}
	}
	return false
}

// Detector runs the detection pipeline over a document.
type Detector struct {
	cfg   *config.Config
	debug bool
}

// NewDetector creates a detector with the given configuration. The
// configuration must already be validated.
func NewDetector(cfg *config.Config) *Detector {
	return &Detector{cfg: cfg, debug: cfg.IsDebug()}
}

// Inspect runs the pipeline over every page of the document and returns the
// per-page redactions. A page that cannot be decoded contributes an empty
// list rather than failing the run; one broken page should not hide leaks
// on the others.
func (d *Detector) Inspect(doc engine.Document) (Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("no document to inspect")
	}

	result := make(Result, doc.PageCount())
	for n := 1; n <= doc.PageCount(); n++ {
		page, err := doc.Page(n)
		if err != nil {
			d.logf("page %d: %v", n, err)
			result[n] = []Redaction{}
			continue
		}
		result[n] = d.inspectPage(page)
	}

	if d.cfg.DateScope == config.DateScopeDocument {
		suppressIfAllDates(result)
	}
	return result, nil
}

// inspectPage runs extraction, overlap resolution, uniformity verification
// and content classification for one page.
func (d *Detector) inspectPage(page engine.Page) []Redaction {
	redactions := []Redaction{}

	shapes, err := page.Shapes()
	if err != nil {
		d.logf("page %d: shapes: %v", page.Number(), err)
		return redactions
	}
	spans, err := page.TextSpans()
	if err != nil {
		d.logf("page %d: text: %v", page.Number(), err)
		return redactions
	}

	groups := coverGroups(shapes, d.cfg)
	if len(groups) == 0 {
		return redactions
	}

	for _, cand := range resolveOverlaps(groups, spans, d.cfg) {
		if !keepText(cand.Text) {
			continue
		}
		if !verifyUniform(page, cand.Group.BBox, d.cfg.RasterScale, d.cfg.ColorTolerance) {
			d.logf("page %d: cover at %+v not uniform, rejected", page.Number(), cand.Group.BBox)
			continue
		}
		box := cand.Group.BBox
		redactions = append(redactions, Redaction{
			BBox: BBox{box.X0, box.Y0, box.X1, box.Y1},
			Text: cand.Text,
		})
	}

	if d.cfg.DateScope == config.DateScopePage {
		if allDates(redactions) {
			redactions = []Redaction{}
		}
	}
	return redactions
}

// suppressIfAllDates empties every page's list when the only text recovered
// across the whole document is dates. Date stamps under covers are a known
// false-positive pattern in scanned court filings.
func suppressIfAllDates(result Result) {
	var total int
	for _, list := range result {
		total += len(list)
		if !allDates(list) {
			return
		}
	}
	if total == 0 {
		return
	}
	for n := range result {
		result[n] = []Redaction{}
	}
}

func allDates(redactions []Redaction) bool {
	for _, r := range redactions {
		if !looksLikeDate(r.Text) {
			return false
		}
	}
	return true
}

func (d *Detector) logf(format string, args ...any) {
	if d.debug {
		log.Printf(format, args...)
	}
}
