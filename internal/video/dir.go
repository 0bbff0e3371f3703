package video

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	frames "github.com/ironsheep/lane-detect/internal/imaging"
)

// DirSource reads still images from a directory in lexical file name order,
// so numbered frame dumps play back in sequence.
type DirSource struct {
	paths []string
	next  int
}

// OpenDir lists the decodable images in dir.
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read frame directory")
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frames.IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return &DirSource{paths: paths}, nil
}

// Len returns the number of frames in the directory.
func (s *DirSource) Len() int {
	return len(s.paths)
}

// Next decodes the next image, or returns io.EOF after the last one.
func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return img, nil
}

// Close implements pipeline.Source.
func (s *DirSource) Close() error {
	return nil
}

// DirSink writes every frame as a numbered PNG file.
type DirSink struct {
	dir    string
	prefix string
	next   int
}

// NewDirSink creates dir if needed. Files are named <prefix>_000000.png,
// <prefix>_000001.png and so on.
func NewDirSink(dir, prefix string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	if prefix == "" {
		prefix = "frame"
	}
	return &DirSink{dir: dir, prefix: prefix}, nil
}

// Write saves frame as the next numbered file.
func (s *DirSink) Write(frame image.Image) error {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%06d.png", s.prefix, s.next))
	if err := imaging.Save(frame, path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	s.next++
	return nil
}

// Close implements pipeline.Sink.
func (s *DirSink) Close() error {
	return nil
}
