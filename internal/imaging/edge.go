package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
)

// plane is a single-channel float image used between the Canny stages.
type plane struct {
	w, h int
	v    []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, v: make([]float64, w*h)}
}

// at returns the value at (x, y) with coordinates clamped to the border.
func (p *plane) at(x, y int) float64 {
	return p.v[clamp(y, 0, p.h-1)*p.w+clamp(x, 0, p.w-1)]
}

// ExtractEdges performs Canny edge detection and returns a binary edge map.
//
// The result has the same bounds as img; edge pixels are 255 and everything
// else is 0. The transform is deterministic, so the same frame always yields
// the same map.
//
// # Algorithm
//
//  1. Grayscale conversion (bild effect.Grayscale)
//
//  2. Gaussian blur: 5x5 kernel to reduce noise
//
//  3. Gradient computation: Sobel operators for X and Y gradients
//     magnitude = sqrt(Gx² + Gy²) on the 0-255 intensity scale
//
//  4. Non-maximum suppression: thin edges to 1-pixel width by keeping only
//     local maxima across the gradient direction
//
//  5. Hysteresis thresholding:
//     - Pixels at or above thresholdHigh are strong edges (always kept)
//     - Pixels between thresholdLow and thresholdHigh are weak edges, kept
//     only when 8-connected to a strong edge, directly or through other
//     weak edges
//     - Pixels below thresholdLow are discarded
//
// The usual ratio between the thresholds is 1:3, e.g. 50/150.
func ExtractEdges(img image.Image, thresholdLow, thresholdHigh int) *image.Gray {
	bounds := img.Bounds()
	result := image.NewGray(bounds)
	if bounds.Empty() {
		return result
	}

	gray := luminance(img)
	blurred := gaussianBlur(gray)
	magnitude, direction := sobel(blurred)
	thin := suppressNonMaxima(magnitude, direction)

	for i, strong := range hysteresis(thin, float64(thresholdLow), float64(thresholdHigh)) {
		if strong {
			x, y := i%thin.w, i/thin.w
			result.Pix[y*result.Stride+x] = 255
		}
	}
	return result
}

// luminance converts img to a 0-255 intensity plane.
func luminance(img image.Image) *plane {
	g := effect.Grayscale(img)
	gb := g.Bounds()
	p := newPlane(gb.Dx(), gb.Dy())
	// Grayscale keeps RGBA layout with R=G=B
	for y := 0; y < p.h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+p.w*4]
		for x := 0; x < p.w; x++ {
			p.v[y*p.w+x] = float64(row[x*4])
		}
	}
	return p
}

// gaussianBlur applies a 5x5 Gaussian blur to reduce noise before edge detection.
//
// Uses a standard 5x5 Gaussian kernel with sigma ≈ 1.4:
//
//	1  4  7  4  1
//	4 16 26 16  4
//	7 26 41 26  7
//	4 16 26 16  4
//	1  4  7  4  1
//
// Total kernel sum = 273, used for normalization.
// Border pixels use clamped (replicated) edge values.
func gaussianBlur(src *plane) *plane {
	kernel := [5][5]float64{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
	const kernelSum = 273.0

	dst := newPlane(src.w, src.h)
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var sum float64
			for ky := -2; ky <= 2; ky++ {
				for kx := -2; kx <= 2; kx++ {
					sum += src.at(x+kx, y+ky) * kernel[ky+2][kx+2]
				}
			}
			dst.v[y*dst.w+x] = sum / kernelSum
		}
	}
	return dst
}

// sobel returns the gradient magnitude and direction (radians) of src.
func sobel(src *plane) (magnitude, direction *plane) {
	magnitude = newPlane(src.w, src.h)
	direction = newPlane(src.w, src.h)

	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			gx := -src.at(x-1, y-1) + src.at(x+1, y-1) -
				2*src.at(x-1, y) + 2*src.at(x+1, y) -
				src.at(x-1, y+1) + src.at(x+1, y+1)
			gy := -src.at(x-1, y-1) - 2*src.at(x, y-1) - src.at(x+1, y-1) +
				src.at(x-1, y+1) + 2*src.at(x, y+1) + src.at(x+1, y+1)

			i := y*src.w + x
			magnitude.v[i] = math.Hypot(gx, gy)
			direction.v[i] = math.Atan2(gy, gx)
		}
	}
	return magnitude, direction
}

// suppressNonMaxima keeps a gradient only where it is at least as large as
// both neighbours along the gradient direction. The outermost border is
// cleared since its neighbours are clamped copies.
func suppressNonMaxima(magnitude, direction *plane) *plane {
	out := newPlane(magnitude.w, magnitude.h)
	for y := 1; y < magnitude.h-1; y++ {
		for x := 1; x < magnitude.w-1; x++ {
			i := y*magnitude.w + x
			mag := magnitude.v[i]
			if mag == 0 {
				continue
			}

			// Fold the direction into [0, 180) degrees and pick one of four sectors
			angle := direction.v[i] * 180 / math.Pi
			if angle < 0 {
				angle += 180
			}

			var n1, n2 float64
			switch {
			case angle < 22.5 || angle >= 157.5:
				n1, n2 = magnitude.at(x-1, y), magnitude.at(x+1, y)
			case angle < 67.5:
				n1, n2 = magnitude.at(x-1, y-1), magnitude.at(x+1, y+1)
			case angle < 112.5:
				n1, n2 = magnitude.at(x, y-1), magnitude.at(x, y+1)
			default:
				n1, n2 = magnitude.at(x+1, y-1), magnitude.at(x-1, y+1)
			}

			if mag >= n1 && mag >= n2 {
				out.v[i] = mag
			}
		}
	}
	return out
}

// hysteresis marks strong pixels and every weak pixel reachable from one.
func hysteresis(p *plane, low, high float64) []bool {
	keep := make([]bool, len(p.v))
	stack := make([]int, 0)

	for i, v := range p.v {
		if v >= high && v > 0 {
			keep[i] = true
			stack = append(stack, i)
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%p.w, i/p.w

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= p.w || ny < 0 || ny >= p.h {
					continue
				}
				n := ny*p.w + nx
				if keep[n] {
					continue
				}
				if v := p.v[n]; v >= low && v > 0 {
					keep[n] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return keep
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
