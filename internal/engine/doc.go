// Package engine provides the asynchronous job runner. It admits jobs against
// stored datasets, executes their computations on background goroutines,
// records every outcome (including panics and deadline overruns) in the job
// store, and publishes status transitions to subscribers.
package engine
