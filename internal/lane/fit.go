package lane

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/lane-detect/internal/detection"
)

var (
	// ErrNoSegments reports a frame in which the detector found nothing.
	ErrNoSegments = errors.New("no line segments detected")

	// ErrEmptyGroup reports a side with no classified segments.
	ErrEmptyGroup = errors.New("no segments on this side")

	// ErrDegenerateFit reports averaged parameters that cannot be turned into
	// a line spanning the lane extent (zero or non-finite slope).
	ErrDegenerateFit = errors.New("degenerate fit")

	// ErrVertical reports a segment with x1 == x2, which has no finite slope.
	ErrVertical = errors.New("vertical segment")
)

// maxCoordinate bounds reconstructed x values so near-horizontal fits
// cannot overflow the int conversion.
const maxCoordinate = math.MaxInt32

// Fit is a line in image space, y = Slope*x + Intercept.
type Fit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Finite reports whether both parameters are finite numbers.
func (f Fit) Finite() bool {
	return !math.IsNaN(f.Slope) && !math.IsInf(f.Slope, 0) &&
		!math.IsNaN(f.Intercept) && !math.IsInf(f.Intercept, 0)
}

// Side identifies a lane boundary.
type Side int

const (
	// Left holds segments with negative slope. With y growing downward, a
	// boundary that rises toward the horizon from the bottom-left has
	// negative slope.
	Left Side = iota
	// Right holds every other segment, including slope exactly zero.
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// FitSegment fits a first-degree polynomial through both endpoints of s.
//
// A vertical segment has no slope/intercept form and returns ErrVertical.
func FitSegment(s detection.Segment) (Fit, error) {
	if s.X1 == s.X2 {
		return Fit{}, errors.Wrapf(ErrVertical, "segment (%d,%d)-(%d,%d)", s.X1, s.Y1, s.X2, s.Y2)
	}
	xs := []float64{float64(s.X1), float64(s.X2)}
	ys := []float64{float64(s.Y1), float64(s.Y2)}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	return Fit{Slope: slope, Intercept: intercept}, nil
}

// Classify assigns a fit to a side by the sign of its slope.
func Classify(f Fit) Side {
	if f.Slope < 0 {
		return Left
	}
	return Right
}

// Average returns the component-wise mean of fits.
func Average(fits []Fit) (Fit, error) {
	if len(fits) == 0 {
		return Fit{}, ErrEmptyGroup
	}
	slopes := make([]float64, len(fits))
	intercepts := make([]float64, len(fits))
	for i, f := range fits {
		slopes[i] = f.Slope
		intercepts[i] = f.Intercept
	}
	return Fit{
		Slope:     stat.Mean(slopes, nil),
		Intercept: stat.Mean(intercepts, nil),
	}, nil
}

// Line is a reconstructed lane boundary from the bottom of the frame
// (X1, Y1) up to the upper extent (X2, Y2).
type Line struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Reconstruct solves x = (y - b) / m at y = height and at
// y = round(upperExtent * height).
func Reconstruct(f Fit, height int, upperExtent float64) (Line, error) {
	if f.Slope == 0 || !f.Finite() {
		return Line{}, errors.Wrapf(ErrDegenerateFit, "slope=%g intercept=%g", f.Slope, f.Intercept)
	}

	y1 := height
	y2 := int(math.Round(float64(height) * upperExtent))
	x1 := (float64(y1) - f.Intercept) / f.Slope
	x2 := (float64(y2) - f.Intercept) / f.Slope

	if math.Abs(x1) > maxCoordinate || math.Abs(x2) > maxCoordinate {
		return Line{}, errors.Wrapf(ErrDegenerateFit, "slope=%g intercept=%g puts the line off-canvas", f.Slope, f.Intercept)
	}

	return Line{
		X1: int(math.Round(x1)),
		Y1: y1,
		X2: int(math.Round(x2)),
		Y2: y2,
	}, nil
}
