package sender

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/appendship/pkg/record"
)

// MemoryTransport appends batches to an in-process stream.
// It honours fencing tokens and match sequence numbers like the service does.
type MemoryTransport struct {
	mu      sync.Mutex
	tail    uint64
	fencing *string
	records []record.Record
	batches int
	now     func() time.Time
}

// NewMemoryTransport creates an empty in-memory stream.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{now: time.Now}
}

// SetFencingToken sets the token required on subsequent appends.
func (m *MemoryTransport) SetFencingToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fencing = &token
}

// Append assigns sequence numbers to the batch.
func (m *MemoryTransport) Append(ctx context.Context, batch *record.Batch) (*record.AppendAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fencing != nil && (batch.FencingToken == nil || *batch.FencingToken != *m.fencing) {
		return nil, &Error{Kind: KindFencingMismatch, StatusCode: 412, Message: "fencing token mismatch"}
	}
	if batch.MatchSeqNum != nil && *batch.MatchSeqNum != m.tail {
		return nil, &Error{Kind: KindSeqNumMismatch, StatusCode: 412, Message: "sequence number mismatch"}
	}

	ts := uint64(m.now().UnixMilli())
	start := record.StreamPosition{SeqNum: m.tail, Timestamp: ts}
	m.tail += uint64(len(batch.Records))
	m.records = append(m.records, batch.Records...)
	m.batches++
	end := record.StreamPosition{SeqNum: m.tail, Timestamp: ts}

	return &record.AppendAck{Start: start, End: end, Tail: end}, nil
}

// Records returns a copy of everything appended so far.
func (m *MemoryTransport) Records() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]record.Record(nil), m.records...)
}

// Batches returns the number of accepted batches.
func (m *MemoryTransport) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// Tail returns the next sequence number to be assigned.
func (m *MemoryTransport) Tail() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tail
}
