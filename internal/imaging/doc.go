// Package imaging holds the pixel-level stages of the lane pipeline.
//
// ExtractEdges turns a colour frame into a binary Canny edge map, MaskRegion
// keeps only the edges inside the road polygon, RenderLines strokes lane lines
// onto a blank canvas and Blend composites that canvas back onto the frame.
// The package also carries small helpers for the MCP tools and the video
// sinks: a path-keyed ImageCache for stills, PNG encoding and downscaling.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Edge and mask outputs keep
// the bounds of their input; rendered canvases and blends are anchored at
// (0,0).
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. Every other function is stateless
// and may run concurrently on different frames.
package imaging
