package pipeline

import (
	"context"
	"image"
	"io"
	"log"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/lane-detect/internal/lane"
)

// Source supplies frames in display order. Next returns io.EOF once the
// stream is exhausted.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Sink consumes composited frames.
type Sink interface {
	Write(frame image.Image) error
	Close() error
}

// Observer is told about every processed frame, in source order, before the
// composite reaches the sink.
type Observer interface {
	Observe(index int, res *FrameResult) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(index int, res *FrameResult) error

// Observe calls f.
func (f ObserverFunc) Observe(index int, res *FrameResult) error {
	return f(index, res)
}

// Stats summarises a run.
type Stats struct {
	Frames     int `json:"frames"`
	TwoLines   int `json:"two_lines"`
	OneLine    int `json:"one_line"`
	NoLines    int `json:"no_lines"`
	Degenerate int `json:"degenerate"`
}

func (s *Stats) add(r lane.Result) {
	s.Frames++
	switch len(r.Lines()) {
	case 2:
		s.TwoLines++
	case 1:
		s.OneLine++
	default:
		s.NoLines++
	}
	if r.Degenerate() {
		s.Degenerate++
	}
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers processes up to n frames concurrently. Output order is kept.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, o)
	}
}

// WithDebug enables per-frame debug logging.
func WithDebug(debug bool) Option {
	return func(r *Runner) {
		r.debug = debug
	}
}

// Runner pulls frames from a Source, processes them and pushes composites
// to a Sink until the source ends or the context is cancelled.
type Runner struct {
	proc      *Processor
	src       Source
	sink      Sink
	workers   int
	observers []Observer
	debug     bool
}

// NewRunner wires a Processor between src and sink.
func NewRunner(proc *Processor, src Source, sink Sink, opts ...Option) *Runner {
	r := &Runner{
		proc:    proc,
		src:     src,
		sink:    sink,
		workers: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes frames until end of stream or cancellation. Both end the
// run normally. Cancellation is only checked between frames; a frame that has
// been pulled is always processed and written.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	if r.workers <= 1 {
		return r.runSequential(ctx)
	}
	return r.runParallel(ctx)
}

func (r *Runner) runSequential(ctx context.Context) (Stats, error) {
	var stats Stats
	for index := 0; ; index++ {
		if ctx.Err() != nil {
			return stats, nil
		}

		frame, err := r.src.Next(ctx)
		if err != nil {
			if stopped(ctx, err) {
				return stats, nil
			}
			return stats, errors.Wrapf(err, "read frame %d", index)
		}

		if err := r.emit(&stats, index, r.proc.Process(frame)); err != nil {
			return stats, err
		}
	}
}

type job struct {
	index int
	frame image.Image
	done  chan *FrameResult
}

func (r *Runner) runParallel(ctx context.Context) (Stats, error) {
	var stats Stats
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan *job)
	order := make(chan *job, r.workers)

	// Reader: pulls frames and queues them in source order
	g.Go(func() error {
		defer close(order)
		defer close(jobs)

		for index := 0; ; index++ {
			if gctx.Err() != nil {
				return nil
			}
			frame, err := r.src.Next(gctx)
			if err != nil {
				if stopped(gctx, err) {
					return nil
				}
				return errors.Wrapf(err, "read frame %d", index)
			}

			j := &job{index: index, frame: frame, done: make(chan *FrameResult, 1)}
			select {
			case order <- j:
			case <-gctx.Done():
				return nil
			}
			select {
			case jobs <- j:
			case <-gctx.Done():
				close(j.done)
				return nil
			}
		}
	})

	for w := 0; w < r.workers; w++ {
		g.Go(func() error {
			for j := range jobs {
				j.done <- r.proc.Process(j.frame)
			}
			return nil
		})
	}

	// Writer: emits results in the order they were read
	g.Go(func() error {
		for j := range order {
			res, ok := <-j.done
			if !ok {
				continue
			}
			if err := r.emit(&stats, j.index, res); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	return stats, err
}

func (r *Runner) emit(stats *Stats, index int, res *FrameResult) error {
	stats.add(res.Lanes)

	if r.debug {
		if err := res.Lanes.Err(); err != nil {
			log.Printf("frame %d: %d segments, no full lane pair: %v", index, len(res.Segments), err)
		}
		if res.Lanes.Vertical > 0 {
			log.Printf("frame %d: skipped %d vertical segments", index, res.Lanes.Vertical)
		}
	}

	for _, o := range r.observers {
		if err := o.Observe(index, res); err != nil {
			return errors.Wrapf(err, "observe frame %d", index)
		}
	}
	if err := r.sink.Write(res.Composite); err != nil {
		return errors.Wrapf(err, "write frame %d", index)
	}
	return nil
}

// stopped reports whether err ends the run normally: end of stream, or any
// read that fails once ctx is done. A decoder killed by the quit key or a
// signal reports its own exit status rather than ctx.Err().
func stopped(ctx context.Context, err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return ctx.Err() != nil
}
