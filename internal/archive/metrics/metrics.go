package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the archive module.
// Tracks archive lifecycle counts, grant churn, and read/search durations.
type Metrics struct {
	ArchivesCreated prometheus.Counter
	ArchivesDeleted prometheus.Counter
	GrantsIssued    prometheus.Counter
	GrantsRevoked   prometheus.Counter
	AccessDenied    prometheus.Counter

	GetDuration    prometheus.Histogram
	SearchDuration prometheus.Histogram
	CreateDuration prometheus.Histogram
}

// New creates a new Metrics instance with all archive module metrics registered.
func New() *Metrics {
	return &Metrics{
		ArchivesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curio_archives_created_total",
			Help: "Total number of archives registered",
		}),
		ArchivesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curio_archives_deleted_total",
			Help: "Total number of archives deleted",
		}),
		GrantsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curio_grants_issued_total",
			Help: "Total number of capability grants issued or replaced",
		}),
		GrantsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curio_grants_revoked_total",
			Help: "Total number of capability grants revoked",
		}),
		AccessDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curio_access_denied_total",
			Help: "Total number of operations refused by the capability check",
		}),
		GetDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curio_archive_get_duration_seconds",
			Help:    "Duration of single-archive reads (hot path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curio_archive_search_duration_seconds",
			Help:    "Duration of search and listing operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curio_archive_create_duration_seconds",
			Help:    "Duration of archive creation (id allocation path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementArchivesCreated records a successful archive registration.
func (m *Metrics) IncrementArchivesCreated() {
	m.ArchivesCreated.Inc()
}

// IncrementArchivesDeleted records a successful archive deletion.
func (m *Metrics) IncrementArchivesDeleted() {
	m.ArchivesDeleted.Inc()
}

// IncrementGrantsIssued records a grant set or replaced.
func (m *Metrics) IncrementGrantsIssued() {
	m.GrantsIssued.Inc()
}

// IncrementGrantsRevoked records a grant removal.
func (m *Metrics) IncrementGrantsRevoked() {
	m.GrantsRevoked.Inc()
}

// IncrementAccessDenied records an operation refused for lack of capability.
func (m *Metrics) IncrementAccessDenied() {
	m.AccessDenied.Inc()
}

// ObserveGet records the duration of a single-archive read.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveGet(start time.Time) {
	m.GetDuration.Observe(time.Since(start).Seconds())
}

// ObserveSearch records the duration of a search or listing operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSearch(start time.Time) {
	m.SearchDuration.Observe(time.Since(start).Seconds())
}

// ObserveCreate records the duration of an archive creation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
