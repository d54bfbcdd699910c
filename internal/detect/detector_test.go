package detect

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforensics/xray/internal/config"
	"github.com/docforensics/xray/internal/engine"
	"github.com/docforensics/xray/internal/geometry"
)

// fakePage is an in-memory engine.Page for pipeline tests. Its default
// render is a solid black crop, i.e. a cover that passes the uniformity
// check; tests that need a failing crop override render.
type fakePage struct {
	num    int
	shapes []engine.Shape
	spans  []engine.TextSpan
	render func(clip geometry.Rect, scale float64) (image.Image, error)

	shapesErr error
}

func (p *fakePage) Number() int { return p.num }

func (p *fakePage) Size() (float64, float64, error) { return 612, 792, nil }

func (p *fakePage) Shapes() ([]engine.Shape, error) {
	if p.shapesErr != nil {
		return nil, p.shapesErr
	}
	return p.shapes, nil
}

func (p *fakePage) TextSpans() ([]engine.TextSpan, error) { return p.spans, nil }

func (p *fakePage) RenderRegion(clip geometry.Rect, scale float64) (image.Image, error) {
	if p.render != nil {
		return p.render(clip, scale)
	}
	return uniformImage(color.RGBA{0, 0, 0, 255}), nil
}

type fakeDoc struct {
	pages []*fakePage
}

func (d *fakeDoc) PageCount() int { return len(d.pages) }

func (d *fakeDoc) Page(n int) (engine.Page, error) {
	if n < 1 || n > len(d.pages) {
		return nil, fmt.Errorf("no page %d", n)
	}
	return d.pages[n-1], nil
}

func (d *fakeDoc) Close() error { return nil }

func uniformImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func speckledImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)
	img.SetRGBA(4, 4, color.RGBA{200, 200, 200, 255})
	return img
}

var black = engine.Color{R: 0, G: 0, B: 0}

// barOverText builds the canonical bad redaction: an opaque black bar drawn
// after a text span it fully covers.
func barOverText(text string) *fakePage {
	return &fakePage{
		num: 1,
		shapes: []engine.Shape{{
			BBox:      geometry.Rect{X0: 72, Y0: 200, X1: 300, Y1: 220},
			Fill:      &black,
			Alpha:     1,
			DrawIndex: 2,
			GroupID:   2,
		}},
		spans: []engine.TextSpan{{
			Text:      text,
			BBox:      geometry.Rect{X0: 80, Y0: 204, X1: 250, Y1: 216},
			FontSize:  12,
			DrawIndex: 1,
		}},
	}
}

func newTestDetector() *Detector {
	return NewDetector(config.DefaultConfig())
}

func TestInspectFindsCoveredText(t *testing.T) {
	doc := &fakeDoc{pages: []*fakePage{barOverText("SECRET NAME")}}

	result, err := newTestDetector().Inspect(doc)
	require.NoError(t, err)

	require.Len(t, result[1], 1)
	r := result[1][0]
	assert.Equal(t, "SECRET NAME", r.Text)
	assert.Equal(t, BBox{72, 200, 300, 220}, r.BBox, "reported box is the cover's, not the text's")
}

func TestInspectNoShapesMeansNoRedactions(t *testing.T) {
	doc := &fakeDoc{pages: []*fakePage{{
		num: 1,
		spans: []engine.TextSpan{{
			Text: "perfectly visible text",
			BBox: geometry.Rect{X0: 72, Y0: 100, X1: 300, Y1: 112},
		}},
	}}}

	result, err := newTestDetector().Inspect(doc)
	require.NoError(t, err)

	list, ok := result[1]
	require.True(t, ok, "processed pages are always present")
	assert.Empty(t, list)
}

func TestInspectDecorationWithoutText(t *testing.T) {
	doc := &fakeDoc{pages: []*fakePage{{
		num: 1,
		shapes: []engine.Shape{{
			BBox:      geometry.Rect{X0: 72, Y0: 400, X1: 540, Y1: 420},
			Fill:      &black,
			Alpha:     1,
			DrawIndex: 0,
			GroupID:   0,
		}},
	}}}

	result, err := newTestDetector().Inspect(doc)
	require.NoError(t, err)
	assert.Empty(t, result[1])
}

func TestInspectRespectsDrawOrder(t *testing.T) {
	// The shape is drawn strictly before the text: the text sits on top of
	// it and is not occluded.
	page := barOverText("ON TOP OF THE BAR")
	page.shapes[0].DrawIndex = 0
	page.shapes[0].GroupID = 0
	page.spans[0].DrawIndex = 1

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	assert.Empty(t, result[1])
}

func TestInspectRejectsNoFillCover(t *testing.T) {
	page := barOverText("VISIBLE THROUGH OUTLINE")
	page.shapes[0].Fill = nil

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	assert.Empty(t, result[1])
}

func TestInspectRejectsTranslucentCover(t *testing.T) {
	page := barOverText("VISIBLE THROUGH HIGHLIGHT")
	page.shapes[0].Alpha = 0.35

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	assert.Empty(t, result[1])
}

func TestInspectRejectsPartialOverlap(t *testing.T) {
	// Shift the span so only a sliver is under the bar.
	page := barOverText("MOSTLY VISIBLE")
	page.spans[0].BBox = geometry.Rect{X0: 280, Y0: 204, X1: 500, Y1: 216}

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	assert.Empty(t, result[1])
}

func TestInspectRejectsNonUniformCrop(t *testing.T) {
	page := barOverText("LOOKS COVERED BUT ISNT")
	page.render = func(geometry.Rect, float64) (image.Image, error) {
		return speckledImage(), nil
	}

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	assert.Empty(t, result[1])
}

func TestInspectRejectsCandidateOnRenderFailure(t *testing.T) {
	page := barOverText("UNVERIFIABLE")
	page.render = func(geometry.Rect, float64) (image.Image, error) {
		return nil, fmt.Errorf("raster backend exploded")
	}

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	assert.Empty(t, result[1])
}

func TestInspectPageFailureYieldsEmptyEntry(t *testing.T) {
	broken := &fakePage{num: 1, shapesErr: fmt.Errorf("corrupt content stream")}
	good := barOverText("STILL FOUND")
	good.num = 2

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{broken, good}})
	require.NoError(t, err)

	assert.Empty(t, result[1], "broken page contributes an empty list")
	assert.Len(t, result[2], 1, "other pages are still inspected")
}

func TestInspectStackedCoversReportOnce(t *testing.T) {
	page := barOverText("CLAIMED ONCE")
	// A second, later bar stacked on the same spot.
	page.shapes = append(page.shapes, engine.Shape{
		BBox:      geometry.Rect{X0: 72, Y0: 200, X1: 300, Y1: 220},
		Fill:      &black,
		Alpha:     1,
		DrawIndex: 5,
		GroupID:   5,
	})

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)

	require.Len(t, result[1], 1, "stacked covers over the same text yield one redaction")
	assert.Equal(t, "CLAIMED ONCE", result[1][0].Text)
}

func TestInspectIgnoresHeaderAndTinyShapes(t *testing.T) {
	page := barOverText("REAL FINDING")
	page.shapes = append(page.shapes,
		// header stamp
		engine.Shape{
			BBox:      geometry.Rect{X0: 72, Y0: 10, X1: 540, Y1: 30},
			Fill:      &black,
			Alpha:     1,
			DrawIndex: 10,
			GroupID:   10,
		},
		// thin horizontal rule
		engine.Shape{
			BBox:      geometry.Rect{X0: 72, Y0: 300, X1: 540, Y1: 302},
			Fill:      &black,
			Alpha:     1,
			DrawIndex: 11,
			GroupID:   11,
		},
	)

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	require.Len(t, result[1], 1)
	assert.Equal(t, "REAL FINDING", result[1][0].Text)
}

func TestInspectSuppressesAllDatePages(t *testing.T) {
	p1 := barOverText("12/13/21")
	p2 := barOverText("JOHN Q PUBLIC")
	p2.num = 2

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{p1, p2}})
	require.NoError(t, err)

	assert.Empty(t, result[1], "a page where everything recovered is a date is cleared")
	assert.Len(t, result[2], 1, "other pages are unaffected")
}

func TestInspectReportsDatesOnMixedPage(t *testing.T) {
	// A date cover and a real-text cover on the same page: both are
	// reported, dates included.
	page := barOverText("JOHN Q PUBLIC")
	page.shapes = append(page.shapes, engine.Shape{
		BBox:      geometry.Rect{X0: 72, Y0: 400, X1: 300, Y1: 420},
		Fill:      &black,
		Alpha:     1,
		DrawIndex: 4,
		GroupID:   4,
	})
	page.spans = append(page.spans, engine.TextSpan{
		Text:      "2021-01-05",
		BBox:      geometry.Rect{X0: 80, Y0: 404, X1: 250, Y1: 416},
		FontSize:  12,
		DrawIndex: 3,
	})

	result, err := newTestDetector().Inspect(&fakeDoc{pages: []*fakePage{page}})
	require.NoError(t, err)
	assert.Len(t, result[1], 2)
}

func TestInspectDocumentScopedDateSuppression(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DateScope = config.DateScopeDocument

	t.Run("all dates", func(t *testing.T) {
		p1 := barOverText("12/13/21")
		p2 := barOverText("1/1/2022")
		p2.num = 2

		result, err := NewDetector(cfg).Inspect(&fakeDoc{pages: []*fakePage{p1, p2}})
		require.NoError(t, err)
		assert.Empty(t, result[1])
		assert.Empty(t, result[2])
	})

	t.Run("mixed document keeps everything", func(t *testing.T) {
		p1 := barOverText("12/13/21")
		p2 := barOverText("JOHN Q PUBLIC")
		p2.num = 2

		result, err := NewDetector(cfg).Inspect(&fakeDoc{pages: []*fakePage{p1, p2}})
		require.NoError(t, err)
		assert.Len(t, result[1], 1, "under document scope a date page survives when real leaks exist elsewhere")
		assert.Len(t, result[2], 1)
	})
}

func TestInspectIsDeterministic(t *testing.T) {
	page := barOverText("SAME EVERY TIME")
	page.spans = append(page.spans, engine.TextSpan{
		Text:      "second line",
		BBox:      geometry.Rect{X0: 80, Y0: 208, X1: 240, Y1: 218},
		FontSize:  10,
		DrawIndex: 1,
	})
	doc := &fakeDoc{pages: []*fakePage{page}}

	d := newTestDetector()
	first, err := d.Inspect(doc)
	require.NoError(t, err)
	second, err := d.Inspect(doc)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first, second))
}

func TestResultHasRedactions(t *testing.T) {
	assert.False(t, Result{1: {}}.HasRedactions())
	assert.True(t, Result{1: {}, 2: {{Text: "x"}}}.HasRedactions())
}
