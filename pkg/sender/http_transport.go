package sender

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/bft-labs/appendship/pkg/log"
	"github.com/bft-labs/appendship/pkg/record"
)

const maxErrorBody = 64 << 10

// Compression selects the request body encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a compression name. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionZstd:
		return c, nil
	default:
		return CompressionNone, record.NewConfigError("compression", fmt.Sprintf("unsupported compression %q", s))
	}
}

// Config holds HTTP transport settings.
type Config struct {
	// BaseURL is the basin endpoint, e.g. https://my-basin.b.aws.s2.dev
	BaseURL string

	// Stream is the target stream name
	Stream string

	// AuthToken is sent as a bearer token
	AuthToken string

	// Compression is applied to request bodies
	Compression Compression

	// UserAgent is sent with every request
	UserAgent string
}

// HTTPTransport implements Transport over the stream service REST API.
type HTTPTransport struct {
	client HTTPClient
	cfg    Config
	logger log.Logger
	zstd   *zstd.Encoder
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(client HTTPClient, cfg Config, logger log.Logger) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, record.NewConfigError("base-url", "is required")
	}
	if cfg.Stream == "" {
		return nil, record.NewConfigError("stream", "is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}
	if client == nil {
		client = http.DefaultClient
	}

	t := &HTTPTransport{
		client: client,
		cfg:    cfg,
		logger: log.OrNoop(logger),
	}
	if cfg.Compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		t.zstd = enc
	}
	return t, nil
}

type positionJSON struct {
	SeqNum    uint64 `json:"seq_num"`
	Timestamp uint64 `json:"timestamp"`
}

type ackJSON struct {
	Start positionJSON `json:"start"`
	End   positionJSON `json:"end"`
	Tail  positionJSON `json:"tail"`
}

type recordJSON struct {
	Timestamp *uint64     `json:"timestamp,omitempty"`
	Headers   [][2]string `json:"headers,omitempty"`
	Body      string      `json:"body,omitempty"`
}

type appendJSON struct {
	Records      []recordJSON `json:"records"`
	MatchSeqNum  *uint64      `json:"match_seq_num,omitempty"`
	FencingToken *string      `json:"fencing_token,omitempty"`
}

// Append transmits a batch to the stream.
func (t *HTTPTransport) Append(ctx context.Context, batch *record.Batch) (*record.AppendAck, error) {
	if batch.Empty() {
		return nil, errors.New("append: empty batch")
	}

	payload, err := json.Marshal(encodeBatch(batch))
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	body, err := t.compress(payload)
	if err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}

	endpoint := t.cfg.BaseURL + "/v1/streams/" + url.PathEscape(t.cfg.Stream) + "/records"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("s2-format", "base64")
	req.Header.Set("X-Request-Id", requestID)
	if t.cfg.Compression != CompressionNone {
		req.Header.Set("Content-Encoding", string(t.cfg.Compression))
	}
	if t.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := classifyStatus(resp.StatusCode, respBody)
		t.logger.Debug("append rejected",
			log.String("request_id", requestID),
			log.Int("status", resp.StatusCode),
			log.String("kind", e.Kind.String()),
		)
		return nil, e
	}

	var out ackJSON
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: KindServer, StatusCode: resp.StatusCode, Message: "decode ack", Err: err}
	}
	return &record.AppendAck{
		Start: record.StreamPosition{SeqNum: out.Start.SeqNum, Timestamp: out.Start.Timestamp},
		End:   record.StreamPosition{SeqNum: out.End.SeqNum, Timestamp: out.End.Timestamp},
		Tail:  record.StreamPosition{SeqNum: out.Tail.SeqNum, Timestamp: out.Tail.Timestamp},
	}, nil
}

// Close releases encoder resources.
func (t *HTTPTransport) Close() error {
	if t.zstd != nil {
		return t.zstd.Close()
	}
	return nil
}

func encodeBatch(batch *record.Batch) appendJSON {
	out := appendJSON{
		Records:      make([]recordJSON, len(batch.Records)),
		MatchSeqNum:  batch.MatchSeqNum,
		FencingToken: batch.FencingToken,
	}
	enc := base64.StdEncoding
	for i, r := range batch.Records {
		rj := recordJSON{
			Timestamp: r.Timestamp,
			Body:      enc.EncodeToString(r.Body),
		}
		for _, h := range r.Headers {
			rj.Headers = append(rj.Headers, [2]string{enc.EncodeToString(h.Name), enc.EncodeToString(h.Value)})
		}
		out.Records[i] = rj
	}
	return out
}

func (t *HTTPTransport) compress(payload []byte) ([]byte, error) {
	switch t.cfg.Compression {
	case CompressionZstd:
		return t.zstd.EncodeAll(payload, make([]byte, 0, len(payload)/2)), nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return payload, nil
	}
}

func classifyRequestError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Err: err}
		}
		return ctxErr
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &Error{Kind: KindConnection, NotSent: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}

func classifyStatus(status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	e := ErrorForStatus(status, msg)
	if status != http.StatusPreconditionFailed {
		return e
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return e
	}
	if _, ok := fields["fencing_token_mismatch"]; ok {
		e.Kind = KindFencingMismatch
	} else if _, ok := fields["seq_num_mismatch"]; ok {
		e.Kind = KindSeqNumMismatch
	}
	return e
}
