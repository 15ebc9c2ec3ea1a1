package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/appendship/internal/cliconfig"
	"github.com/bft-labs/appendship/pkg/appendship"
	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/metrics"
	"github.com/bft-labs/appendship/pkg/sender"
	"github.com/bft-labs/appendship/plugins/configwatcher"
)

var longHelp = strings.TrimSpace(`
Ship newline-delimited records to a stream.

Each input line becomes one record. Records are batched by count, size and
linger time, sent with bounded pipelining, and the input offset of the last
acknowledged line is checkpointed so a restart resumes where it left off.

Configuration is read from (lowest to highest precedence) defaults, the config
file (TOML, or YAML for .yaml/.yml), a .env file, APPENDSHIP_* environment
variables, and flags.
`)

var exampleUsage = strings.TrimSpace(`
  appendship --base-url https://my-basin.b.aws.s2.dev --stream events --input /var/log/app.jsonl
  tail -n 100 app.log | appendship --config ~/.appendship/config.toml --input -
  appendship --dry-run --input ./events.jsonl --once
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var (
		cfgPath     string
		envFile     string
		watchConfig bool
	)

	root := &cobra.Command{
		Use:     "appendship",
		Short:   "Ship newline-delimited records to a stream",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				registry *metrics.Registry
				server   *http.Server
			)
			defer func() {
				if server != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = server.Shutdown(shutdownCtx)
				}
			}()

			for {
				run := cfg
				cfgFile, err := loadConfig(&run, cfgPath, envFile, changed)
				if err != nil {
					return err
				}
				logger := cliconfig.Logger(run.LogLevel)
				logConfig(logger, run)

				if registry == nil {
					registry = metrics.NewRegistry(metrics.DefaultConfig())
					if run.MetricsAddr != "" {
						server = serveMetrics(logger, run.MetricsAddr, registry)
					}
				}

				var watch []string
				if watchConfig {
					watch = []string{cfgFile, envFile}
				}
				reload, err := ship(ctx, logger, run, registry, watch)
				if err != nil || !reload {
					return err
				}
				logger.Info().Msg("configuration changed, restarting")
			}
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.appendship/config.toml)")
	f.StringVar(&envFile, "env-file", ".env", "path to a .env file")
	f.BoolVar(&watchConfig, "watch-config", false, "restart when the config or .env file changes")

	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "basin endpoint")
	f.StringVar(&cfg.Stream, "stream", cfg.Stream, "stream name")
	f.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "access token (or APPENDSHIP_AUTH_TOKEN)")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "request compression: none, gzip or zstd")

	f.StringVarP(&cfg.Input, "input", "i", cfg.Input, "input file, or - for stdin")
	f.BoolVar(&cfg.Once, "once", cfg.Once, "ship available lines and exit instead of following the file")
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "checkpoint directory (defaults to the input's directory)")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "poll interval while following")

	f.Float64Var(&cfg.RecordsPerSecond, "records-per-second", cfg.RecordsPerSecond, "read rate limit (0 = unlimited)")
	f.IntVar(&cfg.Burst, "burst", cfg.Burst, "rate limit burst")
	f.StringArrayVar(&cfg.Headers, "header", cfg.Headers, "record header name=value (repeatable)")

	f.DurationVar(&cfg.Linger, "linger", cfg.Linger, "how long a batch waits for more records (negative disables)")
	f.IntVar(&cfg.MaxBatchRecords, "max-batch-records", cfg.MaxBatchRecords, "maximum records per batch")
	f.IntVar(&cfg.MaxBatchBytes, "max-batch-bytes", cfg.MaxBatchBytes, "maximum metered bytes per batch")
	f.StringVar(&cfg.FencingToken, "fencing-token", cfg.FencingToken, "fencing token attached to every batch")
	f.Int64Var(&cfg.MatchSeqNum, "match-seq-num", cfg.MatchSeqNum, "expected stream tail for the first batch (-1 = none)")

	f.IntVar(&cfg.MaxInflight, "max-inflight", cfg.MaxInflight, "maximum batches in flight")
	f.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "timeout per append attempt (0 = none)")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP client timeout")

	f.IntVar(&cfg.RetryMaxAttempts, "retry-max-attempts", cfg.RetryMaxAttempts, "attempts per append, including the first")
	f.DurationVar(&cfg.RetryMinDelay, "retry-min-delay", cfg.RetryMinDelay, "initial retry backoff")
	f.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "maximum retry backoff")
	f.StringVar(&cfg.RetryPolicy, "append-retry-policy", cfg.RetryPolicy, "all or no-side-effects")

	f.DurationVar(&cfg.CheckpointInterval, "checkpoint-interval", cfg.CheckpointInterval, "minimum time between checkpoint writes")
	f.DurationVar(&cfg.ShutdownGrace, "shutdown-grace", cfg.ShutdownGrace, "time allowed to drain on shutdown")

	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	f.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "append to an in-memory stream instead of the service")
	startup := cliconfig.Logger("info")
	if err := f.MarkHidden("dry-run"); err != nil {
		startup.Warn().Err(err).Msg("failed to hide dry-run flag")
	}

	if err := root.Execute(); err != nil {
		startup.Error().Err(err).Msg("appendship")
		os.Exit(1)
	}
}

// loadConfig layers file, .env and environment over the flag values in cfg.
// It returns the config file path that was considered.
func loadConfig(cfg *cliconfig.Config, cfgPath, envFile string, changed map[string]bool) (string, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return cfgFile, fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return cfgFile, err
		}
	}

	if err := cliconfig.LoadDotEnv(envFile); err != nil {
		return cfgFile, err
	}
	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return cfgFile, err
	}
	if err := cfg.Validate(); err != nil {
		return cfgFile, err
	}
	return cfgFile, nil
}

func logConfig(logger zerolog.Logger, cfg cliconfig.Config) {
	logCfg := cfg
	if len(logCfg.AuthToken) > 0 {
		logCfg.AuthToken = "*****"
	}
	if len(logCfg.FencingToken) > 0 {
		logCfg.FencingToken = "*****"
	}
	logger.Info().Interface("config", logCfg).Msg("configuration")
}

func serveMetrics(logger zerolog.Logger, addr string, registry *metrics.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return server
}

// ship runs one agent until the input ends, a signal arrives, or a watched
// config file changes. It reports whether the caller should reload.
func ship(ctx context.Context, logger zerolog.Logger, cfg cliconfig.Config, registry *metrics.Registry, watch []string) (bool, error) {
	libCfg, err := cfg.Library()
	if err != nil {
		return false, err
	}

	opts := []appendship.Option{
		appendship.WithLogger(log.NewZerologAdapterWithLogger(logger)),
		appendship.WithMetrics(registry),
	}
	var memory *sender.MemoryTransport
	if cfg.DryRun {
		memory = sender.NewMemoryTransport()
		opts = append(opts, appendship.WithTransport(memory))
	}
	reloadCh := make(chan struct{}, 1)
	if len(watch) > 0 {
		opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{
			Paths: watch,
			OnChange: func(string) {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			},
		}))
	}

	a, err := appendship.New(libCfg, opts...)
	if err != nil {
		return false, fmt.Errorf("create appendship: %w", err)
	}
	defer a.Close()

	if err := a.Start(context.Background()); err != nil {
		return false, fmt.Errorf("start appendship: %w", err)
	}

	reload := false
	select {
	case <-ctx.Done():
		logger.Info().Msg("received signal, stopping...")
	case <-a.Done():
	case <-reloadCh:
		reload = true
	}

	if err := a.Stop(); err != nil && !errors.Is(err, appendship.ErrNotRunning) {
		return false, fmt.Errorf("stop appendship: %w", err)
	}
	<-a.Done()

	stats := a.Stats()
	event := logger.Info().
		Uint64("submitted", stats.Submitted).
		Uint64("acked", stats.Acked).
		Uint64("failed", stats.Failed)
	if memory != nil {
		event = event.Uint64("dry_run_tail", memory.Tail())
	}
	event.Msg("appendship stopped")

	if err := a.Err(); err != nil {
		return false, err
	}
	return reload, nil
}
