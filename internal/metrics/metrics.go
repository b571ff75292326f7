package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "booking_confirmed_total",
			Help:      "Count of confirmed bookings by location type.",
		},
		[]string{"location_type"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "booking_rejected_total",
			Help:      "Count of rejected booking submissions by reason.",
		},
		[]string{"reason"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled by hosts.",
		},
	)

	slotQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "slot_query_duration_seconds",
			Help:      "Time spent computing the public slot calendar.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pollVotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "poll_votes_total",
			Help:      "Count of poll votes recorded, re-votes included.",
		},
	)

	pollsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "polls_closed_total",
			Help:      "Count of polls leaving the active state by resulting status.",
		},
		[]string{"status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingConfirmed, bookingRejected, bookingCancelled, slotQueryDuration, pollVotes, pollsClosed)
	})
}

func IncBookingConfirmed(locationType string) {
	bookingConfirmed.WithLabelValues(locationType).Inc()
}

func IncBookingRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func ObserveSlotQuery(seconds float64) {
	slotQueryDuration.Observe(seconds)
}

func IncPollVote() {
	pollVotes.Inc()
}

func IncPollClosed(status string) {
	pollsClosed.WithLabelValues(status).Inc()
}
