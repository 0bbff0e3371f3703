package video

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegSource decodes a stored video into RGBA frames through an ffmpeg
// subprocess writing raw rgb24 to a pipe.
type FFmpegSource struct {
	info   StreamInfo
	r      *io.PipeReader
	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
	buf    []byte
}

// OpenFFmpeg probes path and starts decoding it at its native size.
// Downscaling is left to the pipeline so region and segment limits are
// scaled with the frame. The decoder stops when ctx ends or Close is called.
func OpenFFmpeg(ctx context.Context, path string) (*FFmpegSource, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}

	out := ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgb24",
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	cmd := ffmpeg.Input(path).
		Output("pipe:1", out).
		WithOutput(pw).
		WithErrorOutput(io.Discard)
	cmd.Context = ctx

	s := &FFmpegSource{
		info:   *info,
		r:      pr,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan error, 1),
		buf:    make([]byte, info.Width*info.Height*3),
	}
	go func() {
		err := cmd.Run()
		if err != nil {
			err = errors.Wrap(err, "ffmpeg decode")
		}
		pw.CloseWithError(err)
		s.done <- err
	}()
	return s, nil
}

// Info returns the geometry of the decoded frames.
func (s *FFmpegSource) Info() StreamInfo {
	return s.info
}

// Next returns the next frame, or io.EOF at the end of the stream.
// A trailing partial frame is treated as the end of the stream.
func (s *FFmpegSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		// The decoder dies with the context; report why it stopped
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if cerr := s.ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return rgbToImage(s.buf, s.info.Width, s.info.Height), nil
}

// Close stops the decoder and releases the pipe.
func (s *FFmpegSource) Close() error {
	s.cancel()
	s.r.Close()
	<-s.done
	return nil
}

// FFmpegSink encodes frames by piping raw rgb24 into an ffmpeg subprocess.
// The subprocess starts on the first Write, once the frame size is known.
type FFmpegSink struct {
	output    string
	args      ffmpeg.KwArgs
	overwrite bool
	frameRate float64
	stderr    io.Writer

	mu     sync.Mutex
	size   image.Point
	w      *io.PipeWriter
	done   chan error
	buf    []byte
	closed bool
}

// NewFileSink encodes to a video file at path; ffmpeg picks the container
// and codec from the extension. An existing file is overwritten.
func NewFileSink(path string, frameRate float64) *FFmpegSink {
	return &FFmpegSink{
		output:    path,
		args:      ffmpeg.KwArgs{"pix_fmt": "yuv420p"},
		overwrite: true,
		frameRate: frameRate,
		stderr:    io.Discard,
	}
}

// NewDisplaySink shows frames in a window titled title using ffmpeg's SDL
// output device.
func NewDisplaySink(title string, frameRate float64) *FFmpegSink {
	return &FFmpegSink{
		output:    title,
		args:      ffmpeg.KwArgs{"format": "sdl", "pix_fmt": "yuv420p"},
		frameRate: frameRate,
		stderr:    os.Stderr,
	}
}

// Write sends one frame to the encoder. Every frame must have the size of
// the first.
func (s *FFmpegSink) Write(frame image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("sink is closed")
	}
	size := frame.Bounds().Size()
	if s.w == nil {
		s.start(size)
	}
	if size != s.size {
		return errors.Errorf("frame size %v differs from stream size %v", size, s.size)
	}

	imageToRGB(frame, s.buf)
	if _, err := s.w.Write(s.buf); err != nil {
		return errors.Wrap(err, "ffmpeg encoder stopped")
	}
	return nil
}

func (s *FFmpegSink) start(size image.Point) {
	rate := s.frameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}

	pr, pw := io.Pipe()
	stream := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgb24",
		"s":         fmt.Sprintf("%dx%d", size.X, size.Y),
		"framerate": strconv.FormatFloat(rate, 'f', -1, 64),
	}).
		Output(s.output, s.args).
		WithInput(pr).
		WithErrorOutput(s.stderr)
	if s.overwrite {
		stream = stream.OverWriteOutput()
	}

	s.size = size
	s.w = pw
	s.buf = make([]byte, size.X*size.Y*3)
	s.done = make(chan error, 1)
	go func() {
		err := stream.Run()
		if err != nil {
			err = errors.Wrap(err, "ffmpeg encode")
		}
		pr.CloseWithError(err)
		s.done <- err
	}()
}

// Close flushes the encoder and waits for it to exit.
func (s *FFmpegSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.w == nil {
		return nil
	}
	s.w.Close()
	return <-s.done
}

// rgbToImage converts packed rgb24 bytes into a new RGBA image.
func rgbToImage(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < w*h*3; i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 255
	}
	return img
}

// imageToRGB packs img into buf as rgb24. buf must hold w*h*3 bytes.
func imageToRGB(img image.Image, buf []byte) {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok {
		w := b.Dx()
		for y := 0; y < b.Dy(); y++ {
			row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
			out := buf[y*w*3 : (y+1)*w*3]
			for x := 0; x < w; x++ {
				out[x*3] = row[x*4]
				out[x*3+1] = row[x*4+1]
				out[x*3+2] = row[x*4+2]
			}
		}
		return
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			buf[i], buf[i+1], buf[i+2] = uint8(r>>8), uint8(g>>8), uint8(bl>>8)
			i += 3
		}
	}
}
