package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { MustRegister(reg) })

	// Registering twice with the same registry must fail loudly.
	assert.Panics(t, func() { MustRegister(reg) })
}

func TestRecordPage(t *testing.T) {
	before := testutil.ToFloat64(PagesFetchedTotal.WithLabelValues("first", "ok"))
	RecordPage(0, "ok")
	RecordPage(3, "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(PagesFetchedTotal.WithLabelValues("first", "ok")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(PagesFetchedTotal.WithLabelValues("next", "ok")), 1.0)
}

func TestRecordProviderRequest(t *testing.T) {
	before := testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("search", "503"))
	RecordProviderRequest("search", 503)
	assert.Equal(t, before+1, testutil.ToFloat64(ProviderRequestsTotal.WithLabelValues("search", "503")))
}

func TestObservePageFetch(t *testing.T) {
	ObservePageFetch(true, 25*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(PageFetchDuration))
}
