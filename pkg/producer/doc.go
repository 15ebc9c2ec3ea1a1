// Package producer correlates individually submitted records with the
// acknowledgments of the batches that carry them.
//
// A [Producer] feeds records into a batch accumulator, keeps a FIFO ledger
// of their handles, and sends emitted batches pipelined. When a batch is
// acknowledged, the record at index i resolves with sequence number
// ack.Start.SeqNum+i; when it fails, every record of that batch resolves
// with the error. Other batches are unaffected.
//
// # Usage
//
//	p, err := producer.New(transport, producer.DefaultConfig(),
//	    producer.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	h, err := p.Submit(record.NewRecord(data))
//	if err != nil {
//	    return err
//	}
//	ack, err := h.Wait(ctx)
//	...
//	err = p.Close(ctx)
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package producer
