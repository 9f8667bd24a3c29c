package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	arrivalsReceivedTotal     atomic.Uint64
	arrivalsDeadLetteredTotal atomic.Uint64
	jobsCreatedTotal          atomic.Uint64
	jobsDuplicateTotal        atomic.Uint64
	jobsStartedTotal          atomic.Uint64
	jobsCompletedTotal        atomic.Uint64
	jobsRetriedTotal          atomic.Uint64
	jobsDeadTotal             atomic.Uint64
	quotaAdmittedTotal        atomic.Uint64
	quotaDeferredTotal        atomic.Uint64
	quotaRejectedTotal        atomic.Uint64
	emailSentTotal            atomic.Uint64
	emailFailedTotal          atomic.Uint64

	jobDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

func IncArrivalsReceived()     { arrivalsReceivedTotal.Add(1) }
func IncArrivalsDeadLettered() { arrivalsDeadLetteredTotal.Add(1) }
func IncJobsCreated()          { jobsCreatedTotal.Add(1) }
func IncJobsDuplicate()        { jobsDuplicateTotal.Add(1) }
func IncJobsStarted()          { jobsStartedTotal.Add(1) }
func IncJobsCompleted()        { jobsCompletedTotal.Add(1) }
func IncJobsRetried()          { jobsRetriedTotal.Add(1) }
func IncJobsDead()             { jobsDeadTotal.Add(1) }
func IncQuotaAdmitted()        { quotaAdmittedTotal.Add(1) }
func IncQuotaDeferred()        { quotaDeferredTotal.Add(1) }
func IncQuotaRejected()        { quotaRejectedTotal.Add(1) }
func IncEmailSent()            { emailSentTotal.Add(1) }
func IncEmailFailed()          { emailFailedTotal.Add(1) }

// ObserveJobDurationMs records a single execution attempt duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "arrivals_received_total", "Transcript arrivals received", arrivalsReceivedTotal.Load())
	writeCounter(&buf, "arrivals_dead_lettered_total", "Transcript arrivals dead-lettered", arrivalsDeadLetteredTotal.Load())
	writeCounter(&buf, "jobs_created_total", "Analysis jobs created", jobsCreatedTotal.Load())
	writeCounter(&buf, "jobs_duplicate_total", "Job requests dropped as duplicates", jobsDuplicateTotal.Load())
	writeCounter(&buf, "jobs_started_total", "Job execution attempts started", jobsStartedTotal.Load())
	writeCounter(&buf, "jobs_completed_total", "Analysis jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "jobs_retried_total", "Job attempts scheduled for retry", jobsRetriedTotal.Load())
	writeCounter(&buf, "jobs_dead_total", "Analysis jobs moved to dead", jobsDeadTotal.Load())
	writeCounter(&buf, "quota_admitted_total", "Dispatches admitted by quota", quotaAdmittedTotal.Load())
	writeCounter(&buf, "quota_deferred_total", "Dispatches deferred by quota", quotaDeferredTotal.Load())
	writeCounter(&buf, "quota_rejected_total", "Dispatches rejected by quota", quotaRejectedTotal.Load())
	writeCounter(&buf, "email_sent_total", "Result emails sent", emailSentTotal.Load())
	writeCounter(&buf, "email_failed_total", "Result emails that exhausted retries", emailFailedTotal.Load())
	writeHistogram(&buf, "job_attempt_duration_ms", "Job attempt duration in milliseconds", jobDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMs returns the elapsed milliseconds since start.
func SinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
