package record

// Batch is an ordered group of records sent in one append call.
type Batch struct {
	// Records in submission order
	Records []Record

	// FencingToken is attached unchanged to every batch from one accumulator
	FencingToken *string

	// MatchSeqNum is the expected stream tail, if configured
	MatchSeqNum *uint64

	// MeteredBytes is the sum of the records' metered sizes
	MeteredBytes int
}

// Size returns the number of records in the batch.
func (b *Batch) Size() int {
	return len(b.Records)
}

// Empty returns true if the batch has no records.
func (b *Batch) Empty() bool {
	return len(b.Records) == 0
}

// StreamPosition identifies a position in a stream.
type StreamPosition struct {
	SeqNum    uint64
	Timestamp uint64
}

// AppendAck is the service acknowledgment for one batch.
// End.SeqNum is exclusive, so End.SeqNum-Start.SeqNum equals the batch size.
type AppendAck struct {
	Start StreamPosition
	End   StreamPosition
	Tail  StreamPosition
}

// Count returns the number of records covered by the ack.
func (a *AppendAck) Count() uint64 {
	return a.End.SeqNum - a.Start.SeqNum
}

// RecordAck is the outcome of a single record.
type RecordAck struct {
	// SeqNum is the sequence number assigned to the record
	SeqNum uint64

	// Timestamp is the record's timestamp in milliseconds
	Timestamp uint64

	// Batch is the ack of the containing batch, shared by all its records
	Batch *AppendAck
}

// AckFor derives the ack of the record at index i of a batch acknowledged by ack.
func AckFor(ack *AppendAck, i int, r Record) RecordAck {
	ts := ack.Start.Timestamp
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}
	return RecordAck{
		SeqNum:    ack.Start.SeqNum + uint64(i),
		Timestamp: ts,
		Batch:     ack,
	}
}
