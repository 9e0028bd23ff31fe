// Package pipeline orchestrates one conversion: import the dataset through
// the format registry, plan the output targets, dispatch each target to its
// writer, and report aggregate stats.
//
// Error policy: import and planning failures abort the invocation, and so
// does a failed native save (it is the only target of its plan). Per-video
// analysis targets are isolated from each other; NIX value errors and
// exports with no data are downgraded to skips, anything else counts the
// target as failed and moves on.
package pipeline
