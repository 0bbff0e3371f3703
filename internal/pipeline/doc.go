// Package pipeline wires the lane stages into a per-frame Processor and a
// Runner that moves frames from a Source to a Sink.
//
// Frames never share state. The default Runner handles one frame at a time;
// WithWorkers spreads frames over a worker pool and still writes them in
// source order.
package pipeline
