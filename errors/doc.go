// Package errors provides structured error types for shapekit.
//
// Every error carries a Phase (where in processing it occurred), a Kind
// (what went wrong), and an optional field Path, expected/actual shape
// names, and a human-readable detail. Errors are matched with errors.Is
// on Phase and Kind, so callers can test for a category without string
// comparison.
//
// All errors are local, synchronous, and non-retryable: the builder never
// retries internally and never recovers beyond its drop-safety guarantee.
package errors
