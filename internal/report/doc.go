// Package report is the single entry point for reporting failures.
//
// A Reporter captures the caller's location, merges it with the caller's
// context and a timestamp, serializes the result and hands it to a named
// collector, which streams it to the log router. Failures inside that
// pipeline never reach the caller: the first one is logged as a pipeline
// failure, and any failure while doing so is written to the emergency
// channel only.
//
// The only panic that leaves Report is *FatalError, and only when Throw is
// requested for a severity whose taxonomy metadata says it should throw.
package report
