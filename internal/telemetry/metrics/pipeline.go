package metrics

// PipelineMetrics pre-registers the counters and histograms every stage
// worker and the gateway record against, the way BusinessCollectorAdapter
// pre-registers its instruments once at construction rather than on first
// use per call site.
type PipelineMetrics struct {
	StageMessages  Counter // labels: stage, status (ok|error)
	DeadLetters    Counter // labels: stage, reason
	FetchDuration  Histogram
	FetchRetries   Counter // labels: stage
	BufferFlushes  Counter // labels: stage, trigger (full|timeout|shutdown)
	UpsertNewRatio Gauge   // labels: stage
}

// NewPipelineMetrics registers the pipeline's instruments against p. p is
// typically a PrometheusProvider or otelProvider selected by CLI flag, or
// NewNoopProvider() when metrics are disabled.
func NewPipelineMetrics(p Provider) *PipelineMetrics {
	ns := CommonOpts{Namespace: "handshake_pipeline"}
	return &PipelineMetrics{
		StageMessages: p.NewCounter(CounterOpts{CommonOpts: CommonOpts{
			Namespace: ns.Namespace, Name: "stage_messages_total",
			Help: "messages processed per stage", Labels: []string{"stage", "status"},
		}}),
		DeadLetters: p.NewCounter(CounterOpts{CommonOpts: CommonOpts{
			Namespace: ns.Namespace, Name: "dead_letters_total",
			Help: "messages dropped as undecodable, unroutable or rejected by a stage", Labels: []string{"stage", "reason"},
		}}),
		FetchDuration: p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{
			Namespace: ns.Namespace, Name: "fetch_duration_seconds",
			Help: "HTTP fetch latency for crawler requests", Labels: []string{"stage"},
		}}),
		FetchRetries: p.NewCounter(CounterOpts{CommonOpts: CommonOpts{
			Namespace: ns.Namespace, Name: "fetch_retries_total",
			Help: "retry attempts issued by the crawler backoff policy", Labels: []string{"stage"},
		}}),
		BufferFlushes: p.NewCounter(CounterOpts{CommonOpts: CommonOpts{
			Namespace: ns.Namespace, Name: "buffer_flushes_total",
			Help: "E2 batch-buffer drains", Labels: []string{"stage", "trigger"},
		}}),
		UpsertNewRatio: p.NewGauge(GaugeOpts{CommonOpts: CommonOpts{
			Namespace: ns.Namespace, Name: "upsert_new_ratio",
			Help: "fraction of the last T1 upsert batch that was newly inserted", Labels: []string{"stage"},
		}}),
	}
}
