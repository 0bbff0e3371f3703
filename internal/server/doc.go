// Package server implements the MCP (Model Context Protocol) server that
// exposes the lane pipeline to MCP clients.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - image_load: Load a still image and report its metadata
//   - lane_detect: Full pipeline, returns both lane lines and the composite
//   - lane_edge_detect: Canny edge map with adjustable thresholds
//   - lane_region_mask: Edge map restricted to the region of interest
//   - lane_segments: Hough segments with their slope and side
//
// Every tool call goes through the same Processor the video command uses, so
// a configuration file tuned here behaves identically on a clip.
//
// # Image Caching
//
// Decoded images are cached by path for the lifetime of the server process,
// so successive stage tools on the same file decode it once.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// A frame in which no lane could be found is not an error; lane_detect
// reports it in the "failure" field.
//
// # Usage
//
//	proc, err := pipeline.NewProcessor(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := server.New(proc).Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
