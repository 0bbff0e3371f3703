package lane

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/ironsheep/lane-detect/internal/detection"
)

// DefaultUpperExtent places the top of each lane line at 3/5 of the frame height.
const DefaultUpperExtent = 0.6

// Policy decides what happens when only one side can be reconstructed.
type Policy int

const (
	// AllOrNothing drops both lines when either side fails.
	AllOrNothing Policy = iota
	// PerSide keeps whichever side succeeded.
	PerSide
)

// Policy names accepted by ParsePolicy.
const (
	PolicyAllOrNothing = "all_or_nothing"
	PolicyPerSide      = "per_side"
)

func (p Policy) String() string {
	switch p {
	case AllOrNothing:
		return PolicyAllOrNothing
	case PerSide:
		return PolicyPerSide
	default:
		return "unknown"
	}
}

// ParsePolicy converts a configuration name into a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyAllOrNothing:
		return AllOrNothing, nil
	case PolicyPerSide:
		return PerSide, nil
	default:
		return AllOrNothing, errors.Errorf("unknown side policy %q", name)
	}
}

// Result is the outcome of aggregating one frame's segments.
//
// A side is available when its Line is non-nil. When it is not, the matching
// error explains why: ErrNoSegments, ErrEmptyGroup or ErrDegenerateFit. Under
// AllOrNothing a side whose own fit succeeded is still withheld when the other
// side failed; its error then wraps the other side's failure.
type Result struct {
	Left  *Line `json:"left,omitempty"`
	Right *Line `json:"right,omitempty"`

	// LeftFit and RightFit are the averaged parameters when the group was
	// non-empty, regardless of whether reconstruction succeeded.
	LeftFit  *Fit `json:"left_fit,omitempty"`
	RightFit *Fit `json:"right_fit,omitempty"`

	LeftErr  error `json:"-"`
	RightErr error `json:"-"`

	// Vertical counts segments skipped because they had no finite slope.
	Vertical int `json:"vertical"`
}

// Lines returns the available lane lines, left first.
func (r Result) Lines() []Line {
	lines := make([]Line, 0, 2)
	if r.Left != nil {
		lines = append(lines, *r.Left)
	}
	if r.Right != nil {
		lines = append(lines, *r.Right)
	}
	return lines
}

// Err returns the first side failure, or nil when both lines are present.
func (r Result) Err() error {
	if r.LeftErr != nil {
		return errors.Wrap(r.LeftErr, Left.String())
	}
	if r.RightErr != nil {
		return errors.Wrap(r.RightErr, Right.String())
	}
	return nil
}

// Degenerate reports whether either side failed on a degenerate fit, as
// opposed to a plain absence of evidence.
func (r Result) Degenerate() bool {
	return errors.Is(r.LeftErr, ErrDegenerateFit) || errors.Is(r.RightErr, ErrDegenerateFit)
}

// Group fits every segment and splits the fits by side. Vertical segments
// are skipped and counted.
func Group(segments []detection.Segment) (left, right []Fit, vertical int) {
	for _, s := range segments {
		f, err := FitSegment(s)
		if err != nil {
			vertical++
			continue
		}
		if Classify(f) == Left {
			left = append(left, f)
		} else {
			right = append(right, f)
		}
	}
	return left, right, vertical
}

// Aggregator reduces a frame's segments to at most two lane lines.
//
// An Aggregator holds only configuration, so one value can serve any number
// of frames concurrently.
type Aggregator struct {
	Policy      Policy
	UpperExtent float64
}

// NewAggregator returns an Aggregator. An upperExtent outside (0, 1) falls
// back to DefaultUpperExtent.
func NewAggregator(policy Policy, upperExtent float64) *Aggregator {
	if upperExtent <= 0 || upperExtent >= 1 {
		upperExtent = DefaultUpperExtent
	}
	return &Aggregator{Policy: policy, UpperExtent: upperExtent}
}

// Aggregate classifies segments by slope sign, averages each side and
// reconstructs one line per side spanning from height up to the upper extent.
func (a *Aggregator) Aggregate(segments []detection.Segment, height int) Result {
	var res Result
	if len(segments) == 0 {
		res.LeftErr = ErrNoSegments
		res.RightErr = ErrNoSegments
		return res
	}

	left, right, vertical := Group(segments)
	res.Vertical = vertical

	res.Left, res.LeftFit, res.LeftErr = a.side(left, height)
	res.Right, res.RightFit, res.RightErr = a.side(right, height)

	if a.Policy == AllOrNothing {
		switch {
		case res.LeftErr != nil && res.RightErr == nil:
			res.Right = nil
			res.RightErr = errors.Wrap(res.LeftErr, "withheld: left side failed")
		case res.RightErr != nil && res.LeftErr == nil:
			res.Left = nil
			res.LeftErr = errors.Wrap(res.RightErr, "withheld: right side failed")
		}
	}
	return res
}

func (a *Aggregator) side(fits []Fit, height int) (*Line, *Fit, error) {
	avg, err := Average(fits)
	if err != nil {
		return nil, nil, err
	}
	line, err := Reconstruct(avg, height, a.UpperExtent)
	if err != nil {
		return nil, &avg, err
	}
	return &line, &avg, nil
}
