package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"carevisit/internal/model"
)

var (
	once sync.Once

	operationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carevisit",
			Name:      "operation_total",
			Help:      "Count of booking operations by result.",
		},
		[]string{"operation", "result"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carevisit",
			Name:      "operation_duration_seconds",
			Help:      "Duration of booking operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	servicesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carevisit",
			Name:      "services_completed_total",
			Help:      "Count of completed services by menu.",
		},
		[]string{"menu"},
	)

	finalizedCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carevisit",
			Name:      "finalize_cancelled_total",
			Help:      "Count of pending members cancelled by month finalization.",
		},
	)

	writeRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carevisit",
			Name:      "write_retries_total",
			Help:      "Count of writes retried after a concurrent modification.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(operationTotal, operationDuration, servicesCompleted, finalizedCancelled, writeRetries)
	})
}

// ObserveOperation records one operation outcome.
func ObserveOperation(operation string, err error, elapsed time.Duration) {
	operationTotal.WithLabelValues(operation, Result(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func IncServiceCompleted(menu string) {
	servicesCompleted.WithLabelValues(menu).Inc()
}

func AddFinalizedCancelled(n int) {
	finalizedCancelled.Add(float64(n))
}

func IncWriteRetry() {
	writeRetries.Inc()
}

var resultLabels = []struct {
	err   error
	label string
}{
	{model.ErrPastDate, "past_date"},
	{model.ErrDateLocked, "date_locked"},
	{model.ErrDateUnavailable, "date_unavailable"},
	{model.ErrOutsideWindow, "outside_window"},
	{model.ErrAlreadyFinalized, "already_finalized"},
	{model.ErrHistoryExists, "history_exists"},
	{model.ErrNetworkFailure, "network_failure"},
	{model.ErrNotFound, "not_found"},
	{model.ErrInvalidTransition, "invalid_transition"},
	{model.ErrInvalidInput, "invalid_input"},
}

// Result maps an operation error to a metric label.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range resultLabels {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "error"
}
