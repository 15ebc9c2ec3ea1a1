package appendship_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/appendship"
	agent "github.com/bft-labs/appendship/pkg/appendship"
	"github.com/bft-labs/appendship/pkg/sender"
)

func TestRun_Once(t *testing.T) {
	input := filepath.Join(t.TempDir(), "input.log")
	if err := os.WriteFile(input, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cfg := appendship.DefaultConfig()
	cfg.Input = input
	cfg.Once = true
	cfg.Linger = time.Millisecond

	transport := sender.NewMemoryTransport()
	if err := appendship.Run(context.Background(), cfg, agent.WithTransport(transport)); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := transport.Tail(); got != 3 {
		t.Errorf("tail = %d, want 3", got)
	}
}

func TestRun_CanceledWhileFollowing(t *testing.T) {
	input := filepath.Join(t.TempDir(), "input.log")
	if err := os.WriteFile(input, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cfg := appendship.DefaultConfig()
	cfg.Input = input
	cfg.PollInterval = 10 * time.Millisecond

	transport := sender.NewMemoryTransport()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for transport.Tail() < 1 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	if err := appendship.Run(ctx, cfg, agent.WithTransport(transport)); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := transport.Tail(); got != 1 {
		t.Errorf("tail = %d, want 1", got)
	}
}
