package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics tracks the file-fed agent loop.
type AgentMetrics struct {
	LinesRead        prometheus.Counter
	LinesSkipped     prometheus.Counter
	CheckpointOffset prometheus.Gauge
	CheckpointSeqNum prometheus.Gauge
}

func newAgentMetrics(r *Registry) *AgentMetrics {
	return &AgentMetrics{
		LinesRead: r.newCounter("agent", "lines_read_total",
			"Lines read from the input source."),
		LinesSkipped: r.newCounter("agent", "lines_skipped_total",
			"Lines dropped because they could not be submitted."),
		CheckpointOffset: r.newGauge("agent", "checkpoint_offset_bytes",
			"Input offset of the last persisted checkpoint."),
		CheckpointSeqNum: r.newGauge("agent", "checkpoint_seq_num",
			"Sequence number of the last checkpointed record."),
	}
}
