package pipeline

import (
	"context"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	frames []image.Image
	next   int
	err    error // returned instead of io.EOF once frames run out
	onNext func(index int)
	closed bool
}

func (s *sliceSource) Next(ctx context.Context) (image.Image, error) {
	if s.next >= len(s.frames) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	f := s.frames[s.next]
	if s.onNext != nil {
		s.onNext(s.next)
	}
	s.next++
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// blockingSource hands out frames until it runs out, then waits for
// cancellation.
type blockingSource struct {
	sliceSource
}

func (s *blockingSource) Next(ctx context.Context) (image.Image, error) {
	if s.next < len(s.frames) {
		return s.sliceSource.Next(ctx)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// killedSource mimics a decoder subprocess that dies when the run is
// cancelled: once its frames run out it cancels and reports the exit.
type killedSource struct {
	sliceSource
	cancel context.CancelFunc
}

func (s *killedSource) Next(ctx context.Context) (image.Image, error) {
	if s.next < len(s.frames) {
		return s.sliceSource.Next(ctx)
	}
	s.cancel()
	return nil, errors.Wrap(errors.New("signal: killed"), "ffmpeg decode")
}

type collectSink struct {
	mu     sync.Mutex
	frames []image.Image
	err    error
}

func (s *collectSink) Write(frame image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *collectSink) Close() error { return nil }

// shadedFrames returns n small frames whose grey level encodes their index.
func shadedFrames(n int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		for p := 0; p < len(img.Pix); p += 4 {
			v := uint8(10 * (i + 1))
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = v, v, v, 255
		}
		frames[i] = img
	}
	return frames
}

// shadeOf recovers the frame index from a composite of a shadedFrames frame.
func shadeOf(t *testing.T, img image.Image) int {
	t.Helper()
	rgba, ok := img.(*image.RGBA)
	require.True(t, ok)
	// composite = 0.8*v + 1
	v := (float64(rgba.Pix[0]) - 1) / 0.8
	return int(v/10+0.5) - 1
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(nil)
	require.NoError(t, err)
	return p
}

func TestRunner_RunsUntilEOF(t *testing.T) {
	src := &sliceSource{frames: shadedFrames(5)}
	sink := &collectSink{}

	stats, err := NewRunner(newTestProcessor(t), src, sink).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Stats{Frames: 5, NoLines: 5}, stats)
	require.Len(t, sink.frames, 5)
	for i, f := range sink.frames {
		assert.Equal(t, i, shadeOf(t, f))
	}
}

func TestRunner_EmptySource(t *testing.T) {
	sink := &collectSink{}

	stats, err := NewRunner(newTestProcessor(t), &sliceSource{}, sink).Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, stats.Frames)
	assert.Empty(t, sink.frames)
}

func TestRunner_StopsBetweenFramesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &sliceSource{
		frames: shadedFrames(10),
		onNext: func(index int) {
			if index == 2 {
				cancel()
			}
		},
	}
	sink := &collectSink{}

	stats, err := NewRunner(newTestProcessor(t), src, sink).Run(ctx)

	require.NoError(t, err)
	// The frame pulled when the quit arrived is still written
	assert.Equal(t, 3, stats.Frames)
	assert.Len(t, sink.frames, 3)
}

func TestRunner_SourceError(t *testing.T) {
	boom := errors.New("decoder crashed")
	src := &sliceSource{frames: shadedFrames(2), err: boom}

	stats, err := NewRunner(newTestProcessor(t), src, &collectSink{}).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "read frame 2")
	assert.Equal(t, 2, stats.Frames)
}

func TestRunner_SinkError(t *testing.T) {
	boom := errors.New("display closed")
	sink := &collectSink{err: boom}

	_, err := NewRunner(newTestProcessor(t), &sliceSource{frames: shadedFrames(3)}, sink).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "write frame 0")
}

func TestRunner_ObserverSeesEveryFrameInOrder(t *testing.T) {
	var seen []int
	obs := ObserverFunc(func(index int, res *FrameResult) error {
		seen = append(seen, index)
		assert.NotNil(t, res.Composite)
		return nil
	})

	_, err := NewRunner(newTestProcessor(t), &sliceSource{frames: shadedFrames(4)}, &collectSink{},
		WithObserver(obs), WithDebug(true)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestRunner_ObserverError(t *testing.T) {
	obs := ObserverFunc(func(index int, res *FrameResult) error {
		if index == 1 {
			return errors.New("disk full")
		}
		return nil
	})
	sink := &collectSink{}

	_, err := NewRunner(newTestProcessor(t), &sliceSource{frames: shadedFrames(4)}, sink,
		WithObserver(obs)).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "observe frame 1")
	assert.Len(t, sink.frames, 1)
}

func TestRunner_ParallelPreservesOrder(t *testing.T) {
	src := &sliceSource{frames: shadedFrames(20)}
	sink := &collectSink{}

	var seen []int
	obs := ObserverFunc(func(index int, res *FrameResult) error {
		seen = append(seen, index)
		return nil
	})

	stats, err := NewRunner(newTestProcessor(t), src, sink, WithWorkers(4), WithObserver(obs)).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 20, stats.Frames)
	require.Len(t, sink.frames, 20)
	for i, f := range sink.frames {
		assert.Equal(t, i, shadeOf(t, f), "frame %d out of order", i)
		assert.Equal(t, i, seen[i])
	}
}

func TestRunner_ParallelSourceError(t *testing.T) {
	boom := errors.New("decoder crashed")
	src := &sliceSource{frames: shadedFrames(3), err: boom}

	_, err := NewRunner(newTestProcessor(t), src, &collectSink{}, WithWorkers(3)).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRunner_CancelWhileWaitingForFrame(t *testing.T) {
	for _, workers := range []int{1, 3} {
		ctx, cancel := context.WithCancel(context.Background())
		src := &blockingSource{sliceSource{frames: shadedFrames(2)}}
		sink := &collectSink{}

		done := make(chan struct{})
		var stats Stats
		var err error
		go func() {
			defer close(done)
			stats, err = NewRunner(newTestProcessor(t), src, sink, WithWorkers(workers)).Run(ctx)
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("workers=%d: Run did not return after cancel", workers)
		}
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Frames, "workers=%d", workers)
		assert.Len(t, sink.frames, 2, "workers=%d", workers)
	}
}

func TestRunner_DecoderKilledOnCancel(t *testing.T) {
	for _, workers := range []int{1, 3} {
		ctx, cancel := context.WithCancel(context.Background())
		src := &killedSource{sliceSource: sliceSource{frames: shadedFrames(2)}, cancel: cancel}
		sink := &collectSink{}

		stats, err := NewRunner(newTestProcessor(t), src, sink, WithWorkers(workers)).Run(ctx)

		require.NoError(t, err, "workers=%d", workers)
		assert.Equal(t, 2, stats.Frames, "workers=%d", workers)
		assert.Len(t, sink.frames, 2, "workers=%d", workers)
		cancel()
	}
}

func TestStopped(t *testing.T) {
	live := context.Background()
	done, cancel := context.WithCancel(context.Background())
	cancel()
	killed := errors.New("signal: killed")

	assert.True(t, stopped(live, io.EOF))
	assert.True(t, stopped(live, errors.Wrap(io.EOF, "read")))
	assert.False(t, stopped(live, killed))
	assert.True(t, stopped(done, killed))
	assert.True(t, stopped(done, context.Canceled))
}

func TestStats_Add(t *testing.T) {
	p := newTestProcessor(t)
	var s Stats
	s.add(p.Process(roadFrame()).Lanes)
	s.add(p.Process(uniformFrame(1280, 720)).Lanes)

	assert.Equal(t, Stats{Frames: 2, TwoLines: 1, NoLines: 1}, s)
}
