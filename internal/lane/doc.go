// Package lane turns a frame's line segments into at most two lane boundaries.
//
// Each segment is reduced to slope/intercept form, assigned to the left
// boundary (negative slope) or the right boundary (everything else), and each
// side's parameters are averaged. The averaged line is then evaluated at the
// bottom of the frame and at a fixed fraction of the height to give two
// endpoints.
//
// Aggregation is a pure function of the segments and the frame height. Absence
// of evidence is an ordinary outcome reported through Result, never a panic.
//
// Known edge cases:
//   - a perfectly horizontal segment (slope 0) is grouped on the right; if it
//     dominates the average the right side fails with ErrDegenerateFit
//   - vertical segments are skipped since they have no finite slope
package lane
