package imaging

import (
	"image"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// MaskRegion zeroes every pixel of edges that lies outside polygon.
//
// Polygon vertices are pixel coordinates in the same space as edges.Bounds().
// A pixel is inside when the polygon covers at least half of it, which for a
// convex region is the same as its centre lying inside. A polygon with fewer
// than three vertices covers nothing.
func MaskRegion(edges *image.Gray, polygon []image.Point) *image.Gray {
	bounds := edges.Bounds()
	out := image.NewGray(bounds)
	if len(polygon) < 3 || bounds.Empty() {
		return out
	}

	cover := fillPolygon(bounds, polygon)
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		src := edges.Pix[y*edges.Stride : y*edges.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		mask := cover.Pix[y*cover.Stride : y*cover.Stride+w]
		for x := range src {
			if mask[x] >= 0x80 {
				dst[x] = src[x]
			}
		}
	}
	return out
}

// RegionMask returns the polygon as a white-on-black mask of the given size.
func RegionMask(bounds image.Rectangle, polygon []image.Point) *image.Gray {
	out := image.NewGray(bounds)
	if len(polygon) < 3 || bounds.Empty() {
		return out
	}
	cover := fillPolygon(bounds, polygon)
	for i, a := range cover.Pix {
		if a >= 0x80 {
			out.Pix[i] = 255
		}
	}
	return out
}

// ScalePolygon maps polygon vertices into a frame resized by factor s,
// rounding to the nearest pixel.
func ScalePolygon(polygon []image.Point, s float64) []image.Point {
	out := make([]image.Point, len(polygon))
	for i, p := range polygon {
		out[i] = image.Point{
			X: int(math.Round(float64(p.X) * s)),
			Y: int(math.Round(float64(p.Y) * s)),
		}
	}
	return out
}

// fillPolygon rasterises polygon into an alpha coverage map anchored at
// bounds.Min. Vertices sit on pixel centres.
func fillPolygon(bounds image.Rectangle, polygon []image.Point) *image.Alpha {
	w, h := bounds.Dx(), bounds.Dy()
	z := vector.NewRasterizer(w, h)
	z.DrawOp = draw.Src

	pt := func(p image.Point) (float32, float32) {
		p = p.Sub(bounds.Min)
		return float32(p.X) + 0.5, float32(p.Y) + 0.5
	}

	z.MoveTo(pt(polygon[0]))
	for _, p := range polygon[1:] {
		z.LineTo(pt(p))
	}
	z.ClosePath()

	cover := image.NewAlpha(image.Rect(0, 0, w, h))
	z.Draw(cover, cover.Bounds(), image.Opaque, image.Point{})
	return cover
}
