// Package batch groups an ordered stream of records into bounded batches.
//
// An [Accumulator] closes the open batch when adding a record would exceed
// MaxRecords or MaxBytes, when the batch reaches either limit, when the
// linger timer fires, or on an explicit Flush/Complete. Records keep their
// submission order within and across batches.
//
// # Usage
//
//	acc, err := batch.NewAccumulator(batch.DefaultConfig(), logger)
//	if err != nil {
//	    return err
//	}
//	go func() {
//	    for b := range acc.Batches() {
//	        // Send batch...
//	    }
//	}()
//	if err := acc.Submit(rec); err != nil {
//	    return err
//	}
//	acc.Complete()
//
// # Configuration
//
// - Linger: how long an open, non-full batch may wait (0 disables the timer)
// - MaxRecords: records per batch, 1..1000
// - MaxBytes: metered bytes per batch, 1..1 MiB
// - FencingToken: attached unchanged to every batch
// - MatchSeqNum: starting sequence precondition, advanced per batch
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package batch
