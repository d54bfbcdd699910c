package engine

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforensics/xray/internal/geometry"
)

func pixelAt(t *testing.T, img image.Image, x, y int) color.RGBA {
	t.Helper()
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestRenderRegionEmptyPageIsWhite(t *testing.T) {
	img, err := renderRegion(nil, nil, geometry.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}, 2)
	require.NoError(t, err)

	b := img.Bounds()
	assert.Equal(t, 20, b.Dx())
	assert.Equal(t, 20, b.Dy())
	px := pixelAt(t, img, b.Dx()/2, b.Dy()/2)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, px)
}

func TestRenderRegionSolidShape(t *testing.T) {
	black := Color{0, 0, 0}
	shapes := []Shape{{
		BBox:  geometry.Rect{X0: 0, Y0: 0, X1: 50, Y1: 20},
		Fill:  &black,
		Alpha: 1,
	}}

	img, err := renderRegion(shapes, nil, geometry.Rect{X0: 0, Y0: 0, X1: 50, Y1: 20}, 1)
	require.NoError(t, err)

	b := img.Bounds()
	for _, pt := range []image.Point{
		{b.Min.X, b.Min.Y},
		{b.Max.X - 1, b.Max.Y - 1},
		{b.Dx() / 2, b.Dy() / 2},
	} {
		assert.Equal(t, color.RGBA{0, 0, 0, 255}, pixelAt(t, img, pt.X, pt.Y),
			"pixel at %v should be black", pt)
	}
}

func TestRenderRegionTextOnTopOfShape(t *testing.T) {
	// White text replayed after a black bar must break uniformity.
	black := Color{0, 0, 0}
	shapes := []Shape{{
		BBox:      geometry.Rect{X0: 0, Y0: 0, X1: 100, Y1: 20},
		Fill:      &black,
		Alpha:     1,
		DrawIndex: 0,
	}}
	spans := []TextSpan{{
		Text:      "LEAK",
		BBox:      geometry.Rect{X0: 10, Y0: 4, X1: 60, Y1: 16},
		Color:     Color{1, 1, 1},
		DrawIndex: 1,
	}}

	img, err := renderRegion(shapes, spans, geometry.Rect{X0: 0, Y0: 0, X1: 100, Y1: 20}, 2)
	require.NoError(t, err)

	seen := map[color.RGBA]bool{}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			seen[pixelAt(t, img, x, y)] = true
		}
	}
	assert.True(t, seen[color.RGBA{0, 0, 0, 255}], "bar pixels present")
	assert.True(t, seen[color.RGBA{255, 255, 255, 255}], "glyph pixels present")
}

func TestRenderRegionShapeCoversText(t *testing.T) {
	// Same content, opposite order: bar drawn last hides the glyph ink.
	black := Color{0, 0, 0}
	shapes := []Shape{{
		BBox:      geometry.Rect{X0: 0, Y0: 0, X1: 100, Y1: 20},
		Fill:      &black,
		Alpha:     1,
		DrawIndex: 5,
	}}
	spans := []TextSpan{{
		Text:      "hidden",
		BBox:      geometry.Rect{X0: 10, Y0: 4, X1: 60, Y1: 16},
		Color:     Color{1, 1, 1},
		DrawIndex: 1,
	}}

	img, err := renderRegion(shapes, spans, geometry.Rect{X0: 0, Y0: 0, X1: 100, Y1: 20}, 2)
	require.NoError(t, err)

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			require.Equal(t, color.RGBA{0, 0, 0, 255}, pixelAt(t, img, x, y))
		}
	}
}

func TestRenderRegionTranslucentShapeBlends(t *testing.T) {
	black := Color{0, 0, 0}
	shapes := []Shape{{
		BBox:  geometry.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10},
		Fill:  &black,
		Alpha: 0.5,
	}}

	img, err := renderRegion(shapes, nil, geometry.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}, 1)
	require.NoError(t, err)

	px := pixelAt(t, img, 5, 5)
	assert.NotEqual(t, uint8(0), px.R, "half-alpha black over white must not be pure black")
	assert.NotEqual(t, uint8(255), px.R, "half-alpha black over white must not stay white")
}

func TestRenderRegionInvalidInputs(t *testing.T) {
	_, err := renderRegion(nil, nil, geometry.Rect{X0: 5, Y0: 5, X1: 5, Y1: 5}, 1)
	assert.Error(t, err, "degenerate clip")

	_, err = renderRegion(nil, nil, geometry.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}, 0)
	assert.Error(t, err, "zero scale")

	_, err = renderRegion(nil, nil, geometry.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}, -2)
	assert.Error(t, err, "negative scale")
}
