package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for duplicate detection, review task
// creation and merges.
type Metrics struct {
	GroupsFound       prometheus.Counter
	TasksCreated      prometheus.Counter
	TaskFailures      prometheus.Counter
	Merges            *prometheus.CounterVec
	AggregateDuration prometheus.Histogram
	PayloadDuration   prometheus.Histogram
	MergeDuration     prometheus.Histogram
}

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// New registers the deduplication metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GroupsFound: f.NewCounter(prometheus.CounterOpts{
			Name: "dedup_groups_found_total",
			Help: "Total number of duplicate groups returned by aggregation",
		}),
		TasksCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "dedup_review_tasks_created_total",
			Help: "Total number of review tasks created",
		}),
		TaskFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dedup_review_task_failures_total",
			Help: "Total number of groups whose review task could not be created",
		}),
		Merges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dedup_merges_total",
			Help: "Merge outcomes by final state",
		}, []string{"state"}),
		AggregateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dedup_aggregate_duration_seconds",
			Help:    "Duration of duplicate aggregation",
			Buckets: latencyBuckets,
		}),
		PayloadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dedup_payload_build_duration_seconds",
			Help:    "Duration of building one review payload",
			Buckets: latencyBuckets,
		}),
		MergeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dedup_merge_duration_seconds",
			Help:    "Duration of merge transactions",
			Buckets: latencyBuckets,
		}),
	}
}

func (m *Metrics) AddGroupsFound(n int) {
	m.GroupsFound.Add(float64(n))
}

func (m *Metrics) IncTasksCreated() {
	m.TasksCreated.Inc()
}

func (m *Metrics) IncTaskFailures() {
	m.TaskFailures.Inc()
}

// IncMerge counts a merge that ended in state.
func (m *Metrics) IncMerge(state string) {
	m.Merges.WithLabelValues(state).Inc()
}

// ObserveAggregate records the duration of an aggregation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAggregate(start time.Time) {
	m.AggregateDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObservePayload(start time.Time) {
	m.PayloadDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveMerge(start time.Time) {
	m.MergeDuration.Observe(time.Since(start).Seconds())
}
