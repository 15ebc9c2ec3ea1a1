// Package appendship ships newline-delimited records to a stream.
//
// Example usage:
//
//	cfg := appendship.DefaultConfig()
//	cfg.BaseURL = "https://my-basin.b.aws.s2.dev"
//	cfg.Stream = "events"
//	cfg.AuthToken = "your-token"
//	cfg.Input = "/var/log/app/events.jsonl"
//	cfg.Once = true
//	if err := appendship.Run(context.Background(), cfg); err != nil {
//	    log.Fatal(err)
//	}
package appendship

import (
	"context"
	"errors"

	agent "github.com/bft-labs/appendship/pkg/appendship"
)

// Config holds the configuration for the shipping agent.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = agent.Config

// Option configures optional behavior of the agent.
type Option = agent.Option

// Run ships the configured input until it is exhausted (Once), ctx is
// canceled, or a record fails. The agent is stopped gracefully before Run
// returns; cancellation is not reported as an error.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	a, err := agent.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(context.Background()); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	if err := a.Stop(); err != nil && !errors.Is(err, agent.ErrNotRunning) {
		return err
	}
	<-a.Done()
	return a.Err()
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, BaseURL, Stream and Input must be set before calling Run.
func DefaultConfig() Config {
	return agent.DefaultConfig()
}
