// Package detection finds straight line segments in binary edge maps.
//
// The detector is a Hough line transform followed by a run-splitting pass
// that turns each strong (rho, theta) line into the concrete segments the
// edge pixels actually cover:
//
//  1. Voting: every set pixel votes for all lines through it
//  2. Peaks: accumulator cells above the vote threshold that are local maxima
//  3. Runs: pixels near each peak line are ordered along it and split at gaps
//  4. Filtering: runs shorter than the minimum length are dropped
//
// Pixels that end up in an emitted segment are consumed, so neighbouring
// peaks describing the same stripe do not produce duplicate segments.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Performance Considerations
//
// Voting is O(edge pixels × angles) and each candidate line rescans the edge
// pixel list, so the detector should only ever see a masked edge map. On a
// 1280x720 frame restricted to the lane region this is a few milliseconds.
//
// The detector holds no state between calls and is safe for concurrent use
// on different edge maps.
package detection
