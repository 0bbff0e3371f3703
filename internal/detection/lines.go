package detection

import (
	"image"
	"math"
	"sort"
)

// Segment is a straight line segment in image pixel coordinates.
//
// The endpoints are edge pixels lying at the two extremes of a collinear run.
// Their order carries no meaning.
type Segment struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Length returns the Euclidean distance between the segment endpoints.
func (s Segment) Length() float64 {
	return math.Hypot(float64(s.X2-s.X1), float64(s.Y2-s.Y1))
}

// HoughParams controls segment extraction from an edge map.
type HoughParams struct {
	// Rho is the distance resolution of the accumulator in pixels. It is also
	// the tolerance used when collecting pixels that lie on a detected line.
	Rho float64 `json:"rho"`

	// Theta is the angular resolution of the accumulator in radians.
	Theta float64 `json:"theta"`

	// Threshold is the minimum number of votes for a line to be considered.
	Threshold int `json:"threshold"`

	// MinLineLength discards segments shorter than this many pixels.
	MinLineLength int `json:"min_line_length"`

	// MaxLineGap is the largest gap, in pixels, between collinear edge pixels
	// that still joins them into one segment.
	MaxLineGap int `json:"max_line_gap"`

	// MaxLines caps the number of segments returned. Zero means no cap.
	MaxLines int `json:"max_lines"`
}

// DefaultHoughParams returns the parameters tuned for 1280x720 dashboard video.
func DefaultHoughParams() HoughParams {
	return HoughParams{
		Rho:           2,
		Theta:         math.Pi / 180,
		Threshold:     100,
		MinLineLength: 40,
		MaxLineGap:    5,
		MaxLines:      50,
	}
}

// Scale returns p adjusted for a frame resized by factor s. Vote threshold,
// minimum length and maximum gap are all measured in pixels along a line, so
// they shrink with the frame; the accumulator resolution is left alone.
func (p HoughParams) Scale(s float64) HoughParams {
	if s == 1 || s <= 0 {
		return p
	}
	p.Threshold = scalePixels(p.Threshold, s)
	p.MinLineLength = scalePixels(p.MinLineLength, s)
	p.MaxLineGap = scalePixels(p.MaxLineGap, s)
	return p
}

func scalePixels(v int, s float64) int {
	if v <= 0 {
		return v
	}
	return max(1, int(math.Round(float64(v)*s)))
}

type peak struct {
	rho   int
	theta int
	votes int
}

type projection struct {
	idx int
	pos float64
}

// DetectSegments finds straight line segments in a binary edge map.
//
// Every non-zero pixel votes for all (rho, theta) lines through it. Accumulator
// cells that reach p.Threshold and are local maxima become candidate lines,
// visited from the strongest down. For each candidate, the unused edge pixels
// within p.Rho of the line are sorted along it and split wherever consecutive
// pixels are more than p.MaxLineGap apart; every run at least p.MinLineLength
// long is emitted as a segment and its pixels are consumed.
//
// An empty result is normal for frames without usable structure.
func DetectSegments(edges *image.Gray, p HoughParams) []Segment {
	bounds := edges.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	points := make([]image.Point, 0)
	for y := 0; y < height; y++ {
		row := edges.Pix[y*edges.Stride : y*edges.Stride+width]
		for x, v := range row {
			if v != 0 {
				points = append(points, image.Point{X: x, Y: y})
			}
		}
	}
	if len(points) == 0 || p.Rho <= 0 || p.Theta <= 0 {
		return nil
	}

	numAngles := int(math.Round(math.Pi / p.Theta))
	if numAngles < 1 {
		numAngles = 1
	}
	maxDist := math.Hypot(float64(width), float64(height))
	numRho := int(math.Ceil(2*maxDist/p.Rho)) + 1

	cosT := make([]float64, numAngles)
	sinT := make([]float64, numAngles)
	for t := 0; t < numAngles; t++ {
		angle := float64(t) * p.Theta
		cosT[t] = math.Cos(angle)
		sinT[t] = math.Sin(angle)
	}

	// Vote in Hough space
	accumulator := make([]int, numRho*numAngles)
	for _, pt := range points {
		fx, fy := float64(pt.X), float64(pt.Y)
		for t := 0; t < numAngles; t++ {
			r := int(math.Round((fx*cosT[t] + fy*sinT[t] + maxDist) / p.Rho))
			if r >= 0 && r < numRho {
				accumulator[r*numAngles+t]++
			}
		}
	}

	peaks := findPeaks(accumulator, numRho, numAngles, p.Threshold)
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].votes > peaks[j].votes
	})

	used := make([]bool, len(points))
	segments := make([]Segment, 0)
	maxGap := float64(p.MaxLineGap)

	for _, pk := range peaks {
		if p.MaxLines > 0 && len(segments) >= p.MaxLines {
			break
		}

		rho := float64(pk.rho)*p.Rho - maxDist
		cosA, sinA := cosT[pk.theta], sinT[pk.theta]

		// Collect unused pixels on this line, keyed by position along it
		on := make([]projection, 0)
		for i, pt := range points {
			if used[i] {
				continue
			}
			fx, fy := float64(pt.X), float64(pt.Y)
			if math.Abs(fx*cosA+fy*sinA-rho) <= p.Rho {
				on = append(on, projection{idx: i, pos: -fx*sinA + fy*cosA})
			}
		}
		if len(on) < 2 {
			continue
		}
		sort.Slice(on, func(i, j int) bool {
			if on[i].pos == on[j].pos {
				return on[i].idx < on[j].idx
			}
			return on[i].pos < on[j].pos
		})

		start := 0
		for i := 1; i <= len(on); i++ {
			if i < len(on) && on[i].pos-on[i-1].pos-1 <= maxGap {
				continue
			}
			run := on[start:i]
			start = i

			first := points[run[0].idx]
			last := points[run[len(run)-1].idx]
			seg := Segment{
				X1: first.X + bounds.Min.X,
				Y1: first.Y + bounds.Min.Y,
				X2: last.X + bounds.Min.X,
				Y2: last.Y + bounds.Min.Y,
			}
			if seg.Length() < float64(p.MinLineLength) {
				continue
			}
			for _, pr := range run {
				used[pr.idx] = true
			}
			segments = append(segments, seg)
			if p.MaxLines > 0 && len(segments) >= p.MaxLines {
				break
			}
		}
	}

	return segments
}

// findPeaks returns accumulator cells with at least threshold votes that are
// not exceeded by any cell in their 3x3 neighbourhood.
func findPeaks(accumulator []int, numRho, numAngles, threshold int) []peak {
	if threshold < 1 {
		threshold = 1
	}
	peaks := make([]peak, 0)
	for r := 0; r < numRho; r++ {
		for t := 0; t < numAngles; t++ {
			votes := accumulator[r*numAngles+t]
			if votes < threshold {
				continue
			}
			isMax := true
			for dr := -1; dr <= 1 && isMax; dr++ {
				for dt := -1; dt <= 1 && isMax; dt++ {
					if dr == 0 && dt == 0 {
						continue
					}
					nr, nt := r+dr, t+dt
					if nr < 0 || nr >= numRho || nt < 0 || nt >= numAngles {
						continue
					}
					if accumulator[nr*numAngles+nt] > votes {
						isMax = false
					}
				}
			}
			if isMax {
				peaks = append(peaks, peak{rho: r, theta: t, votes: votes})
			}
		}
	}
	return peaks
}
