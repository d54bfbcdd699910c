// Package engine is the PDF engine collaborator boundary for the redaction
// detector. It exposes page enumeration, per-page vector shape and text span
// listings with explicit draw order, and rasterization of arbitrary page
// sub-rectangles, backed by pdfcpu (document validation) and ledongthuc/pdf
// (page structure, content streams, character geometry).
//
// All coordinates handed out by this package are in top-left-origin page
// space: y grows downward and (X0, Y0) is the upper-left corner. The flip
// from PDF's native bottom-left space happens here so the detection pipeline
// never sees engine-specific conventions.
package engine

import (
	"fmt"
	"image"

	"github.com/docforensics/xray/internal/geometry"
)

// Color is an RGB color with components in [0, 1].
type Color struct {
	R, G, B float64
}

// Shape is a filled vector region on a page.
//
// Fill is nil for shapes painted without a fill (stroke-only paths and
// explicit no-op paints); these are retained so the overlap resolver can
// reject them explicitly. Alpha is the fill alpha from the
// graphics state, 1 when fully opaque. DrawIndex is the shape's position in
// the page's content-stream operation order; GroupID is shared by every
// shape emitted by the same painting operator, so multi-rectangle redaction
// bars can be treated as one cover.
type Shape struct {
	BBox      geometry.Rect
	Fill      *Color
	Alpha     float64
	DrawIndex int
	GroupID   int
}

// TextSpan is a contiguous run of characters sharing a font and baseline.
// BBox is the nominal box derived from font metrics; envelope adjustment for
// intersection testing is the pipeline's job, not the engine's.
type TextSpan struct {
	Text      string
	BBox      geometry.Rect
	Font      string
	FontSize  float64
	Color     Color
	DrawIndex int
}

// Page is a single page of an open document.
type Page interface {
	// Number returns the 1-based page number.
	Number() int

	// Size returns the page width and height in page units.
	Size() (width, height float64, err error)

	// Shapes returns the page's vector shapes in content-stream order.
	Shapes() ([]Shape, error)

	// TextSpans returns the page's text spans in content-stream order.
	TextSpans() ([]TextSpan, error)

	// RenderRegion rasterizes the given page sub-rectangle at scale device
	// pixels per page unit and returns the pixel buffer.
	RenderRegion(clip geometry.Rect, scale float64) (image.Image, error)
}

// Document is an open PDF document.
type Document interface {
	// PageCount returns the number of pages.
	PageCount() int

	// Page returns the page with the given 1-based number.
	Page(n int) (Page, error)

	// Close releases document resources.
	Close() error
}

// EngineError wraps a low-level engine failure with the operation that
// produced it.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
