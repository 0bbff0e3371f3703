// Package report keeps diagnostics about a run: a SQLite record of every
// frame's lane result and a plot of the fitted slopes over time.
package report
