package lane

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/lane-detect/internal/detection"
)

// Segments on y = -2x + 1000 (left) and y = 2x - 1560 (right) for a
// 1280x720 frame.
var (
	leftSeg  = detection.Segment{X1: 200, Y1: 600, X2: 300, Y2: 400}
	rightSeg = detection.Segment{X1: 1000, Y1: 440, X2: 1100, Y2: 640}
)

func TestGroup(t *testing.T) {
	segments := []detection.Segment{
		leftSeg,
		rightSeg,
		{X1: 0, Y1: 100, X2: 50, Y2: 100}, // horizontal goes right
		{X1: 500, Y1: 0, X2: 500, Y2: 90}, // vertical is skipped
		{X1: 10, Y1: 90, X2: 20, Y2: 80},  // left
	}

	left, right, vertical := Group(segments)
	assert.Len(t, left, 2)
	assert.Len(t, right, 2)
	assert.Equal(t, 1, vertical)
	for _, f := range left {
		assert.Less(t, f.Slope, 0.0)
	}
	for _, f := range right {
		assert.GreaterOrEqual(t, f.Slope, 0.0)
	}
}

func TestGroup_OrderIndependent(t *testing.T) {
	a := []detection.Segment{leftSeg, rightSeg, {X1: 220, Y1: 560, X2: 320, Y2: 360}}
	b := []detection.Segment{a[2], a[1], a[0]}

	agg := NewAggregator(AllOrNothing, DefaultUpperExtent)
	ra := agg.Aggregate(a, 720)
	rb := agg.Aggregate(b, 720)

	if diff := cmp.Diff(ra.Lines(), rb.Lines()); diff != "" {
		t.Errorf("segment order changed the result (-a +b):\n%s", diff)
	}
}

func TestAggregate_BothSides(t *testing.T) {
	agg := NewAggregator(AllOrNothing, DefaultUpperExtent)
	res := agg.Aggregate([]detection.Segment{leftSeg, rightSeg}, 720)

	require.NoError(t, res.Err())
	require.NotNil(t, res.Left)
	require.NotNil(t, res.Right)

	want := []Line{
		{X1: 140, Y1: 720, X2: 284, Y2: 432},
		{X1: 1140, Y1: 720, X2: 996, Y2: 432},
	}
	if diff := cmp.Diff(want, res.Lines()); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, res.LeftFit)
	assert.InDelta(t, -2.0, res.LeftFit.Slope, 1e-9)
	assert.InDelta(t, 1000.0, res.LeftFit.Intercept, 1e-6)
	assert.False(t, res.Degenerate())
}

func TestAggregate_NoSegments(t *testing.T) {
	res := NewAggregator(AllOrNothing, DefaultUpperExtent).Aggregate(nil, 720)
	assert.Empty(t, res.Lines())
	assert.ErrorIs(t, res.LeftErr, ErrNoSegments)
	assert.ErrorIs(t, res.RightErr, ErrNoSegments)
	assert.False(t, res.Degenerate())
}

func TestAggregate_OneSidedIsEmptyUnderAllOrNothing(t *testing.T) {
	// slope -2, intercept 300 with no right-group members
	seg := detection.Segment{X1: 0, Y1: 300, X2: 100, Y2: 100}

	res := NewAggregator(AllOrNothing, DefaultUpperExtent).Aggregate([]detection.Segment{seg}, 720)
	assert.Empty(t, res.Lines())
	assert.Nil(t, res.Left)
	assert.Nil(t, res.Right)
	assert.ErrorIs(t, res.RightErr, ErrEmptyGroup)
	assert.ErrorIs(t, res.LeftErr, ErrEmptyGroup, "left is withheld because right failed")
	assert.NotNil(t, res.LeftFit, "the left fit itself was computed")
	assert.Error(t, res.Err())
}

func TestAggregate_PerSideKeepsGoodSide(t *testing.T) {
	seg := detection.Segment{X1: 0, Y1: 300, X2: 100, Y2: 100}

	res := NewAggregator(PerSide, DefaultUpperExtent).Aggregate([]detection.Segment{seg}, 720)
	require.NotNil(t, res.Left)
	assert.Nil(t, res.Right)
	assert.Len(t, res.Lines(), 1)
	assert.NoError(t, res.LeftErr)
	assert.ErrorIs(t, res.RightErr, ErrEmptyGroup)
	assert.ErrorIs(t, res.Err(), ErrEmptyGroup)
}

func TestAggregate_DegenerateRightSide(t *testing.T) {
	horizontal := detection.Segment{X1: 600, Y1: 500, X2: 700, Y2: 500}

	tests := []struct {
		name      string
		policy    Policy
		wantLines int
	}{
		{"all or nothing", AllOrNothing, 0},
		{"per side", PerSide, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewAggregator(tt.policy, DefaultUpperExtent).Aggregate([]detection.Segment{leftSeg, horizontal}, 720)
			assert.Len(t, res.Lines(), tt.wantLines)
			assert.ErrorIs(t, res.RightErr, ErrDegenerateFit)
			assert.True(t, res.Degenerate())
		})
	}
}

func TestAggregate_OnlyVerticalSegments(t *testing.T) {
	segments := []detection.Segment{
		{X1: 100, Y1: 0, X2: 100, Y2: 200},
		{X1: 300, Y1: 50, X2: 300, Y2: 250},
	}

	res := NewAggregator(PerSide, DefaultUpperExtent).Aggregate(segments, 720)
	assert.Empty(t, res.Lines())
	assert.Equal(t, 2, res.Vertical)
	assert.ErrorIs(t, res.LeftErr, ErrEmptyGroup)
	assert.ErrorIs(t, res.RightErr, ErrEmptyGroup)
}

func TestNewAggregator_UpperExtentFallback(t *testing.T) {
	for _, v := range []float64{0, -1, 1, 2} {
		assert.Equal(t, DefaultUpperExtent, NewAggregator(AllOrNothing, v).UpperExtent)
	}
	assert.Equal(t, 0.5, NewAggregator(AllOrNothing, 0.5).UpperExtent)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", AllOrNothing, false},
		{"all_or_nothing", AllOrNothing, false},
		{"PER_SIDE", PerSide, false},
		{" per_side ", PerSide, false},
		{"sometimes", AllOrNothing, true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, name string) Policy {
	t.Helper()
	p, err := ParsePolicy(name)
	require.NoError(t, err)
	return p
}
