package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(bookings.WithLabelValues("conflict"))
	IncBooking("conflict")
	assert.Equal(t, before+1, testutil.ToFloat64(bookings.WithLabelValues("conflict")))

	before = testutil.ToFloat64(providerDegraded.WithLabelValues("google"))
	IncProviderDegraded("google")
	assert.Equal(t, before+1, testutil.ToFloat64(providerDegraded.WithLabelValues("google")))

	before = testutil.ToFloat64(slotsComputed.WithLabelValues("any_available"))
	ObserveAvailability("any_available", 0.01, 16)
	assert.Equal(t, before+16, testutil.ToFloat64(slotsComputed.WithLabelValues("any_available")))
}
