package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/appendship/pkg/record"
	"github.com/bft-labs/appendship/pkg/sender"
)

// Result label values.
const (
	resultAcked  = "acked"
	resultFailed = "failed"
)

// PipelineMetrics tracks batch outcomes and retries.
type PipelineMetrics struct {
	Batches       *prometheus.CounterVec
	Records       *prometheus.CounterVec
	BytesAcked    prometheus.Counter
	AppendLatency prometheus.Histogram
	BatchRecords  prometheus.Histogram
	Retries       *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	TailSeqNum    prometheus.Gauge
}

func newPipelineMetrics(r *Registry) *PipelineMetrics {
	return &PipelineMetrics{
		Batches: r.newCounterVec("pipeline", "batches_total",
			"Batches completed, by result.", "result"),
		Records: r.newCounterVec("pipeline", "records_total",
			"Records completed, by result.", "result"),
		BytesAcked: r.newCounter("pipeline", "bytes_acked_total",
			"Metered bytes of acknowledged batches."),
		AppendLatency: r.newHistogram("pipeline", "append_latency_seconds",
			"Time from dispatch to batch outcome, including retries.",
			prometheus.ExponentialBuckets(0.001, 2, 14)),
		BatchRecords: r.newHistogram("pipeline", "batch_records",
			"Records per acknowledged batch.",
			[]float64{1, 5, 10, 50, 100, 250, 500, 1000}),
		Retries: r.newCounterVec("pipeline", "retries_total",
			"Append retries, by error kind.", "kind"),
		Failures: r.newCounterVec("pipeline", "failures_total",
			"Failed batches, by error kind.", "kind"),
		TailSeqNum: r.newGauge("pipeline", "tail_seq_num",
			"Stream tail reported by the latest acknowledgment."),
	}
}

// OnBatchAcked implements pipeline.EventEmitter.
func (m *PipelineMetrics) OnBatchAcked(records, bytes int, ack *record.AppendAck, duration time.Duration) {
	m.Batches.WithLabelValues(resultAcked).Inc()
	m.Records.WithLabelValues(resultAcked).Add(float64(records))
	m.BytesAcked.Add(float64(bytes))
	m.AppendLatency.Observe(duration.Seconds())
	m.BatchRecords.Observe(float64(records))
	if ack != nil {
		m.TailSeqNum.Set(float64(ack.Tail.SeqNum))
	}
}

// OnBatchFailed implements pipeline.EventEmitter.
func (m *PipelineMetrics) OnBatchFailed(err error, records int, duration time.Duration) {
	m.Batches.WithLabelValues(resultFailed).Inc()
	m.Records.WithLabelValues(resultFailed).Add(float64(records))
	m.AppendLatency.Observe(duration.Seconds())
	m.Failures.WithLabelValues(sender.KindOf(err).String()).Inc()
}

// OnRetry matches retry.RetryHook.
func (m *PipelineMetrics) OnRetry(attempt int, err error, delay time.Duration) {
	m.Retries.WithLabelValues(sender.KindOf(err).String()).Inc()
}
