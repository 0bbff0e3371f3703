package video

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultFrameRate is used when a stream does not report a usable rate.
const DefaultFrameRate = 25.0

// StreamInfo describes the first video stream of a file.
type StreamInfo struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
	Frames    int     `json:"frames,omitempty"`
}

type probeResult struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe runs ffprobe on path and returns its video stream geometry.
func Probe(path string) (*StreamInfo, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ffprobe %s", path)
	}
	return parseProbe(out)
}

func parseProbe(data string) (*StreamInfo, error) {
	var probe probeResult
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return nil, errors.Wrap(err, "failed to parse ffprobe output")
	}

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return nil, errors.Errorf("video stream has no size (%dx%d)", s.Width, s.Height)
		}

		info := &StreamInfo{Width: s.Width, Height: s.Height, FrameRate: DefaultFrameRate}
		if r, ok := parseFrameRate(s.AvgFrameRate); ok {
			info.FrameRate = r
		} else if r, ok := parseFrameRate(s.RFrameRate); ok {
			info.FrameRate = r
		}
		if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
			info.Frames = n
		}
		return info, nil
	}
	return nil, errors.New("no video stream found")
}

// parseFrameRate parses ffprobe's "num/den" rates, e.g. "30000/1001".
func parseFrameRate(s string) (float64, bool) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	d := 1.0
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil || d == 0 {
			return 0, false
		}
	}
	if r := n / d; r > 0 {
		return r, true
	}
	return 0, false
}
