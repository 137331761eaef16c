package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "booking_engine"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Booking records created, by creation path.",
		},
		[]string{"path"},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Single-target requests rejected because the slot was taken.",
		},
	)

	broadcastFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout",
			Help:      "Number of copies created per broadcast request.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 50},
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Applied booking status transitions.",
		},
		[]string{"from", "to"},
	)

	transitionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transition_rejections_total",
			Help:      "Rejected status change attempts, by reason.",
		},
		[]string{"reason"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			slotConflicts,
			broadcastFanout,
			statusTransitions,
			transitionRejections,
		)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncBookingsCreated adds n records created through path ("single" or "broadcast").
func IncBookingsCreated(path string, n int) {
	bookingsCreated.WithLabelValues(path).Add(float64(n))
}

func IncSlotConflict() {
	slotConflicts.Inc()
}

func ObserveFanout(copies int) {
	broadcastFanout.Observe(float64(copies))
}

func IncTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

func IncTransitionRejected(reason string) {
	transitionRejections.WithLabelValues(reason).Inc()
}
