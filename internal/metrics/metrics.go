// Package metrics exposes the Prometheus instruments of the pipeline.
// Instruments register with the default registry on first use.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type pipelineMetrics struct {
	once sync.Once

	clones          *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	jobsInFlight    prometheus.Gauge
	chunks          prometheus.Counter
	embedBatches    *prometheus.CounterVec
	embedSkipped    prometheus.Counter
	retrievals      prometheus.Counter
	chats           *prometheus.CounterVec
	cloneDuration   prometheus.Histogram
	jobDuration     prometheus.Histogram
	embedDuration   prometheus.Histogram
	retrieveLatency prometheus.Histogram
	generateLatency prometheus.Histogram
}

var m pipelineMetrics

func (p *pipelineMetrics) init() {
	p.once.Do(func() {
		p.clones = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sourcechat_clones_total", Help: "Clone requests by result"}, []string{"result"})
		p.jobs = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sourcechat_jobs_total", Help: "Processing jobs by result"}, []string{"result"})
		p.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sourcechat_jobs_in_flight", Help: "Processing jobs currently running"})
		p.chunks = prometheus.NewCounter(prometheus.CounterOpts{Name: "sourcechat_chunks_total", Help: "Chunks produced by the chunker"})
		p.embedBatches = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sourcechat_embedding_batches_total", Help: "Embedding batches by result"}, []string{"result"})
		p.embedSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "sourcechat_embeddings_skipped_total", Help: "Chunks already indexed and skipped"})
		p.retrievals = prometheus.NewCounter(prometheus.CounterOpts{Name: "sourcechat_retrievals_total", Help: "Similarity searches served"})
		p.chats = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sourcechat_chat_requests_total", Help: "Chat requests by result"}, []string{"result"})

		fast := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		slow := []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800}
		generation := []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120}
		p.cloneDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sourcechat_clone_seconds", Help: "Clone duration", Buckets: slow})
		p.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sourcechat_job_seconds", Help: "Processing job duration", Buckets: slow})
		p.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sourcechat_embed_batch_seconds", Help: "Embedding batch duration", Buckets: fast})
		p.retrieveLatency = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sourcechat_retrieve_seconds", Help: "Retrieval latency", Buckets: fast})
		p.generateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "sourcechat_generate_seconds", Help: "Answer generation latency", Buckets: generation})

		prometheus.MustRegister(
			p.clones, p.jobs, p.jobsInFlight, p.chunks,
			p.embedBatches, p.embedSkipped, p.retrievals, p.chats,
			p.cloneDuration, p.jobDuration, p.embedDuration, p.retrieveLatency, p.generateLatency,
		)
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordClone(start time.Time, err error) {
	m.init()
	m.clones.WithLabelValues(result(err)).Inc()
	m.cloneDuration.Observe(time.Since(start).Seconds())
}

// JobStarted returns a func to call when the job ends.
func JobStarted() func(err error) {
	m.init()
	start := time.Now()
	m.jobsInFlight.Inc()
	return func(err error) {
		m.jobsInFlight.Dec()
		m.jobs.WithLabelValues(result(err)).Inc()
		m.jobDuration.Observe(time.Since(start).Seconds())
	}
}

func AddChunks(n int) { m.init(); m.chunks.Add(float64(n)) }

func AddSkippedEmbeddings(n int) { m.init(); m.embedSkipped.Add(float64(n)) }

func RecordEmbedBatch(start time.Time, err error) {
	m.init()
	m.embedBatches.WithLabelValues(result(err)).Inc()
	m.embedDuration.Observe(time.Since(start).Seconds())
}

func RecordRetrieval(start time.Time) {
	m.init()
	m.retrievals.Inc()
	m.retrieveLatency.Observe(time.Since(start).Seconds())
}

func RecordGeneration(start time.Time) { m.init(); m.generateLatency.Observe(time.Since(start).Seconds()) }

func RecordChat(err error) { m.init(); m.chats.WithLabelValues(result(err)).Inc() }
