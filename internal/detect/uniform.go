package detect

import (
	"image"
	"image/color"

	"github.com/docforensics/xray/internal/engine"
	"github.com/docforensics/xray/internal/geometry"
)

// verifyUniform renders the cover region of a candidate and reports whether
// every pixel matches the first one within the per-channel tolerance. A true
// redaction bar rasterizes to a single solid color; visible text, borders or
// gradient fills inside the region mean the shape does not actually hide
// anything.
//
// Render failures reject the candidate: an unverifiable report is worse than
// a missed one.
func verifyUniform(page engine.Page, box geometry.Rect, scale float64, tolerance int) bool {
	img, err := page.RenderRegion(box, scale)
	if err != nil {
		return false
	}
	return isUniform(img, tolerance)
}

func isUniform(img image.Image, tolerance int) bool {
	bounds := img.Bounds()
	if bounds.Empty() {
		return false
	}

	first := color.RGBAModel.Convert(img.At(bounds.Min.X, bounds.Min.Y)).(color.RGBA)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			if channelDiff(px.R, first.R) > tolerance ||
				channelDiff(px.G, first.G) > tolerance ||
				channelDiff(px.B, first.B) > tolerance {
				return false
			}
		}
	}
	return true
}

func channelDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
