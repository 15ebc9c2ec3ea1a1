package record

import (
	"errors"
	"testing"
)

func TestRecord_MeteredBytes(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want int
	}{
		{"empty", Record{}, 8},
		{"body only", NewRecord([]byte("hello")), 13},
		{"one header", NewRecord([]byte("ab")).WithHeader("k", "vv"), 8 + 2 + 2 + 1 + 2},
		{
			"two headers",
			NewRecord(nil).WithHeader("a", "b").WithHeader("cc", ""),
			8 + 4 + 1 + 1 + 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.MeteredBytes(); got != tt.want {
				t.Errorf("MeteredBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecord_WithHeaderDoesNotMutate(t *testing.T) {
	base := NewRecord([]byte("x")).WithHeader("a", "1")
	_ = base.WithHeader("b", "2")
	_ = base.WithHeader("c", "3")

	if len(base.Headers) != 1 {
		t.Fatalf("base headers = %d, want 1", len(base.Headers))
	}
}

func TestAckFor(t *testing.T) {
	ack := &AppendAck{
		Start: StreamPosition{SeqNum: 100, Timestamp: 5000},
		End:   StreamPosition{SeqNum: 103, Timestamp: 5001},
	}

	got := AckFor(ack, 2, NewRecord(nil))
	if got.SeqNum != 102 || got.Timestamp != 5000 || got.Batch != ack {
		t.Errorf("AckFor() = %+v", got)
	}

	got = AckFor(ack, 0, NewRecord(nil).WithTimestamp(42))
	if got.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want client timestamp 42", got.Timestamp)
	}
	if ack.Count() != 3 {
		t.Errorf("Count() = %d, want 3", ack.Count())
	}
}

func TestConfigError(t *testing.T) {
	err := TooLarge(2048, 1024)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("TooLarge should match ErrInvalidConfig")
	}
	if !errors.Is(err, ErrRecordTooLarge) {
		t.Error("TooLarge should match ErrRecordTooLarge")
	}

	var ce *ConfigError
	if !errors.As(NewConfigError("linger", "must not be negative"), &ce) || ce.Field != "linger" {
		t.Errorf("errors.As failed: %+v", ce)
	}
}
