package sender

import (
	"context"

	"github.com/bft-labs/appendship/pkg/record"
)

// Transport appends one batch to a stream.
// Implementations make a single attempt and return a classified *Error on failure.
type Transport interface {
	Append(ctx context.Context, batch *record.Batch) (*record.AppendAck, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, batch *record.Batch) (*record.AppendAck, error)

// Append calls f.
func (f TransportFunc) Append(ctx context.Context, batch *record.Batch) (*record.AppendAck, error) {
	return f(ctx, batch)
}
