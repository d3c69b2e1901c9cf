package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	slotsComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "slots_computed_total",
			Help:      "Slots returned by availability computations, by scheduling mode.",
		},
		[]string{"mode"},
	)

	availabilityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "slotbook",
			Name:      "availability_duration_seconds",
			Help:      "Wall time of one availability computation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	providerDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "provider_degraded_total",
			Help:      "Participants treated as fully busy because a busy-interval source failed.",
		},
		[]string{"provider"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "bookings_total",
			Help:      "Booking attempts by result.",
		},
		[]string{"result"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotbook",
			Name:      "booking_cancelled_total",
			Help:      "Bookings cancelled.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(slotsComputed, availabilityDuration, providerDegraded, bookings, bookingCancelled)
	})
}

func ObserveAvailability(mode string, seconds float64, slots int) {
	availabilityDuration.WithLabelValues(mode).Observe(seconds)
	slotsComputed.WithLabelValues(mode).Add(float64(slots))
}

func IncProviderDegraded(provider string) {
	providerDegraded.WithLabelValues(provider).Inc()
}

// IncBooking records a booking attempt; result is one of created, conflict, invalid, error.
func IncBooking(result string) {
	bookings.WithLabelValues(result).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}
