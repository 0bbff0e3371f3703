package server

import (
	"encoding/json"
	"image"

	"github.com/pkg/errors"

	"github.com/ironsheep/lane-detect/internal/detection"
	"github.com/ironsheep/lane-detect/internal/imaging"
	"github.com/ironsheep/lane-detect/internal/lane"
	"github.com/ironsheep/lane-detect/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "lane_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Loads the image from cache
//  3. Runs the pipeline, or the stage the tool exposes
//  4. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_load":
		return s.handleImageLoad(args)

	case "lane_detect":
		return s.handleLaneDetect(args)
	case "lane_edge_detect":
		return s.handleLaneEdgeDetect(args)
	case "lane_region_mask":
		return s.handleLaneRegionMask(args)
	case "lane_segments":
		return s.handleLaneSegments(args)

	default:
		return nil, errors.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

type pathArgs struct {
	Path string `json:"path"`
}

func (s *Server) process(path string) (*pipeline.FrameResult, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return s.proc.Process(img), nil
}

// === Basic Image Information Handlers ===

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

// === Lane Pipeline Handlers ===

type laneDetectArgs struct {
	Path         string `json:"path"`
	IncludeImage *bool  `json:"include_image"`
}

// LaneDetectResult is the lane_detect tool output.
type LaneDetectResult struct {
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Segments int        `json:"segments"`
	Lines    int        `json:"lines"`
	Left     *lane.Line `json:"left,omitempty"`
	Right    *lane.Line `json:"right,omitempty"`
	LeftFit  *lane.Fit  `json:"left_fit,omitempty"`
	RightFit *lane.Fit  `json:"right_fit,omitempty"`
	Vertical int        `json:"vertical_segments_skipped"`
	Policy   string     `json:"side_policy"`
	Failure  string     `json:"failure,omitempty"`

	Image *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handleLaneDetect(args json.RawMessage) (interface{}, error) {
	var a laneDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, err := s.process(a.Path)
	if err != nil {
		return nil, err
	}

	lanes := res.Lanes
	out := &LaneDetectResult{
		Width:    res.Frame.Bounds().Dx(),
		Height:   res.Frame.Bounds().Dy(),
		Segments: len(res.Segments),
		Lines:    len(lanes.Lines()),
		Left:     lanes.Left,
		Right:    lanes.Right,
		Vertical: lanes.Vertical,
		Policy:   s.proc.Config().GetSidePolicy(),
	}
	if lanes.LeftFit != nil && lanes.LeftFit.Finite() {
		out.LeftFit = lanes.LeftFit
	}
	if lanes.RightFit != nil && lanes.RightFit.Finite() {
		out.RightFit = lanes.RightFit
	}
	if err := lanes.Err(); err != nil {
		out.Failure = err.Error()
	}

	if a.IncludeImage == nil || *a.IncludeImage {
		if out.Image, err = imaging.EncodePNG(res.Composite); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type laneEdgeDetectArgs struct {
	Path          string `json:"path"`
	ThresholdLow  int    `json:"threshold_low"`
	ThresholdHigh int    `json:"threshold_high"`
}

// EdgeResult is the lane_edge_detect tool output.
type EdgeResult struct {
	*imaging.EncodedImage
	EdgePixels    int `json:"edge_pixels"`
	ThresholdLow  int `json:"threshold_low"`
	ThresholdHigh int `json:"threshold_high"`
}

func (s *Server) handleLaneEdgeDetect(args json.RawMessage) (interface{}, error) {
	var a laneEdgeDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg := s.proc.Config()
	if a.ThresholdLow == 0 {
		a.ThresholdLow = cfg.GetCannyLow()
	}
	if a.ThresholdHigh == 0 {
		a.ThresholdHigh = cfg.GetCannyHigh()
	}
	if a.ThresholdLow < 0 || a.ThresholdLow >= a.ThresholdHigh {
		return nil, errors.Errorf("threshold_low (%d) must be non-negative and below threshold_high (%d)",
			a.ThresholdLow, a.ThresholdHigh)
	}

	if a.Path == "" {
		return nil, errors.New("path is required")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	// Same working frame as lane_detect, so max_width applies here too
	edges := imaging.ExtractEdges(s.proc.Prepare(img), a.ThresholdLow, a.ThresholdHigh)
	encoded, err := imaging.EncodePNG(edges)
	if err != nil {
		return nil, err
	}
	return &EdgeResult{
		EncodedImage:  encoded,
		EdgePixels:    countSet(edges),
		ThresholdLow:  a.ThresholdLow,
		ThresholdHigh: a.ThresholdHigh,
	}, nil
}

// RegionMaskResult is the lane_region_mask tool output.
type RegionMaskResult struct {
	*imaging.EncodedImage
	Polygon     [][2]int `json:"polygon"`
	EdgePixels  int      `json:"edge_pixels"`
	InsideEdges int      `json:"inside_edge_pixels"`
}

func (s *Server) handleLaneRegionMask(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, err := s.process(a.Path)
	if err != nil {
		return nil, err
	}

	encoded, err := imaging.EncodePNG(res.Masked)
	if err != nil {
		return nil, err
	}
	polygon := make([][2]int, len(res.Polygon))
	for i, p := range res.Polygon {
		polygon[i] = [2]int{p.X, p.Y}
	}
	return &RegionMaskResult{
		EncodedImage: encoded,
		Polygon:      polygon,
		EdgePixels:   countSet(res.Edges),
		InsideEdges:  countSet(res.Masked),
	}, nil
}

// SegmentInfo describes one detected segment.
type SegmentInfo struct {
	detection.Segment
	Length float64  `json:"length"`
	Slope  *float64 `json:"slope,omitempty"`
	Side   string   `json:"side"`
}

// SegmentsResult is the lane_segments tool output.
type SegmentsResult struct {
	Count    int           `json:"count"`
	Left     int           `json:"left"`
	Right    int           `json:"right"`
	Vertical int           `json:"vertical"`
	Segments []SegmentInfo `json:"segments"`
}

func (s *Server) handleLaneSegments(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	res, err := s.process(a.Path)
	if err != nil {
		return nil, err
	}

	out := &SegmentsResult{
		Count:    len(res.Segments),
		Segments: make([]SegmentInfo, 0, len(res.Segments)),
	}
	for _, seg := range res.Segments {
		info := SegmentInfo{Segment: seg, Length: seg.Length(), Side: "vertical"}
		if f, err := lane.FitSegment(seg); err == nil {
			slope := f.Slope
			info.Slope = &slope
			side := lane.Classify(f)
			info.Side = side.String()
			if side == lane.Left {
				out.Left++
			} else {
				out.Right++
			}
		} else {
			out.Vertical++
		}
		out.Segments = append(out.Segments, info)
	}
	return out, nil
}

func countSet(g *image.Gray) int {
	n := 0
	for _, v := range g.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}
