// Package record defines the values that flow through the append pipeline.
//
// A [Record] is submitted by the caller, grouped with its neighbours into a
// [Batch], sent to the stream service, and finally reported back through a
// [Handle] as a [RecordAck] or an error.
//
// # Usage
//
//	rec := record.Record{Body: []byte("hello")}
//	h, err := producer.Submit(rec)
//	if err != nil {
//	    return err
//	}
//	ack, err := h.Wait(ctx)
//
// # Errors
//
// Configuration problems are reported as [*ConfigError]. Pipeline-level
// conditions use the sentinel errors in errors.go and can be checked with
// errors.Is.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package record
