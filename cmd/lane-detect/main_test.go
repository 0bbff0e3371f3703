package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/lane-detect/internal/config"
	"github.com/ironsheep/lane-detect/internal/pipeline"
	"github.com/ironsheep/lane-detect/internal/report"
	"github.com/ironsheep/lane-detect/internal/video"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultWorkers, cfg.GetWorkers())
	assert.Equal(t, config.DefaultMaxWidth, cfg.GetMaxWidth())
}

func TestLoadConfig_FileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workers": 2, "max_width": 960, "canny_low": 40}`), 0o644))

	oldWorkers := *workers
	defer func() { *workers = oldWorkers }()
	*workers = 6

	// Only flags actually given override the file
	cfg, err := loadConfig(path, map[string]bool{"workers": true})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.GetWorkers())
	assert.Equal(t, 960, cfg.GetMaxWidth())
	assert.Equal(t, 40, cfg.GetCannyLow())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.json"), nil)
	assert.Error(t, err)
}

func TestOpenSink(t *testing.T) {
	sink, err := openSink("", 25)
	require.NoError(t, err)
	assert.IsType(t, &video.FFmpegSink{}, sink)

	sink, err = openSink(filepath.Join(t.TempDir(), "out.mp4"), 25)
	require.NoError(t, err)
	assert.IsType(t, &video.FFmpegSink{}, sink)

	dir := filepath.Join(t.TempDir(), "frames")
	sink, err = openSink(dir, 25)
	require.NoError(t, err)
	assert.IsType(t, &video.DirSink{}, sink)
	assert.DirExists(t, dir)
}

func TestOpenSource(t *testing.T) {
	_, _, _, err := openSource(context.Background(), "", "")
	assert.ErrorContains(t, err, "no input")

	dir := t.TempDir()
	src, name, fps, err := openSource(context.Background(), dir, "ignored.mp4")
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, dir, name)
	assert.Equal(t, video.DefaultFrameRate, fps)
	assert.IsType(t, &video.DirSource{}, src)
}

func TestFinishRun_KeepsPartialTotalsOnError(t *testing.T) {
	rec, err := report.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer rec.Close()

	run, err := rec.StartRun("clip.mp4", "all_or_nothing")
	require.NoError(t, err)

	partial := pipeline.Stats{Frames: 3, TwoLines: 2, NoLines: 1}
	boom := errors.New("write frame 3: display closed")

	assert.Equal(t, boom, finishRun(run, partial, boom))

	got, err := rec.Stats(run.ID)
	require.NoError(t, err)
	assert.Equal(t, partial, got)
}

func TestFinishRun_NoRecorder(t *testing.T) {
	boom := errors.New("read frame 0")
	assert.Equal(t, boom, finishRun(nil, pipeline.Stats{}, boom))
	assert.NoError(t, finishRun(nil, pipeline.Stats{}, nil))
}
