// Package sender provides transports that deliver record batches to a stream.
//
// A [Transport] performs exactly one append call; retries and pipelining are
// layered on top by the retry and pipeline packages. Failures are reported as
// [*Error] values classified by [ErrorKind] so the retry executor can tell
// transient failures from precondition failures.
//
// # Usage
//
// Create an HTTP transport:
//
//	t, err := sender.NewHTTPTransport(httpClient, sender.Config{
//	    BaseURL:   "https://my-basin.b.aws.s2.dev",
//	    Stream:    "events",
//	    AuthToken: token,
//	}, logger)
//
//	ack, err := t.Append(ctx, batch)
//
// # Custom Transports
//
// Implement the Transport interface, or wrap a function with [TransportFunc],
// to send to alternative destinations. [MemoryTransport] assigns sequence
// numbers locally and is used for dry runs and tests.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package sender
