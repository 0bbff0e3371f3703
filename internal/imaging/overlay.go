package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/fcolor"
	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"

	"github.com/ironsheep/lane-detect/internal/lane"
)

// RenderLines draws lane lines onto a blank canvas the size of bounds.
//
// The canvas starts all zero (black, fully transparent) and each line is
// stroked between its endpoints with the given colour and thickness in
// pixels. Line coordinates are in the same space as bounds; the canvas itself
// is anchored at (0, 0). With no lines the canvas is returned untouched.
func RenderLines(bounds image.Rectangle, lines []lane.Line, c color.Color, thickness int) *image.NRGBA {
	w, h := bounds.Dx(), bounds.Dy()
	canvas := imaging.New(w, h, color.NRGBA{})
	if len(lines) == 0 || w == 0 || h == 0 {
		return canvas
	}
	if thickness < 1 {
		thickness = 1
	}

	src := image.NewUniform(c)
	z := vector.NewRasterizer(w, h)
	mask := image.NewAlpha(canvas.Bounds())

	for _, l := range lines {
		z.Reset(w, h)
		strokeLine(z, l, bounds.Min, float64(thickness))
		for i := range mask.Pix {
			mask.Pix[i] = 0
		}
		z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
		draw.DrawMask(canvas, canvas.Bounds(), src, image.Point{}, mask, image.Point{}, draw.Over)
	}
	return canvas
}

// strokeLine adds a closed quad covering the segment l widened by thickness.
// Endpoints sit on pixel centres; a zero-length line becomes a square dot.
func strokeLine(z *vector.Rasterizer, l lane.Line, origin image.Point, thickness float64) {
	x1 := float64(l.X1-origin.X) + 0.5
	y1 := float64(l.Y1-origin.Y) + 0.5
	x2 := float64(l.X2-origin.X) + 0.5
	y2 := float64(l.Y2-origin.Y) + 0.5

	half := thickness / 2
	size := z.Size()
	var ok bool
	x1, y1, x2, y2, ok = clipSegment(x1, y1, x2, y2,
		-thickness, -thickness, float64(size.X)+thickness, float64(size.Y)+thickness)
	if !ok {
		return
	}

	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)

	if length == 0 {
		z.MoveTo(float32(x1-half), float32(y1-half))
		z.LineTo(float32(x1+half), float32(y1-half))
		z.LineTo(float32(x1+half), float32(y1+half))
		z.LineTo(float32(x1-half), float32(y1+half))
		z.ClosePath()
		return
	}

	nx, ny := -dy/length*half, dx/length*half
	z.MoveTo(float32(x1+nx), float32(y1+ny))
	z.LineTo(float32(x2+nx), float32(y2+ny))
	z.LineTo(float32(x2-nx), float32(y2-ny))
	z.LineTo(float32(x1-nx), float32(y1-ny))
	z.ClosePath()
}

// clipSegment clips a segment to the rectangle [minX, maxX] x [minY, maxY]
// (Liang-Barsky). It reports false when nothing of the segment is inside.
func clipSegment(x1, y1, x2, y2, minX, minY, maxX, maxY float64) (float64, float64, float64, float64, bool) {
	dx, dy := x2-x1, y2-y1
	t0, t1 := 0.0, 1.0

	edges := [4][2]float64{
		{-dx, x1 - minX},
		{dx, maxX - x1},
		{-dy, y1 - minY},
		{dy, maxY - y1},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			if r < t1 {
				t1 = r
			}
		}
	}
	return x1 + t0*dx, y1 + t0*dy, x1 + t1*dx, y1 + t1*dy, true
}

// Blend composites an overlay onto a frame channel by channel:
//
//	out = frameWeight*frame + overlayWeight*overlay + bias
//
// saturated to 0-255. bias is in 8-bit units. The output is opaque and
// anchored at (0, 0) with the size of the smaller input.
func Blend(frame, overlay image.Image, frameWeight, overlayWeight, bias float64) *image.RGBA {
	gamma := bias / 255
	return blend.Blend(frame, overlay, func(c0, c1 fcolor.RGBAF64) fcolor.RGBAF64 {
		out := fcolor.RGBAF64{
			R: frameWeight*c0.R + overlayWeight*c1.R + gamma,
			G: frameWeight*c0.G + overlayWeight*c1.G + gamma,
			B: frameWeight*c0.B + overlayWeight*c1.B + gamma,
			A: 1,
		}
		out.Clamp()
		return out
	})
}
