package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.IncRequest("feed")
	m.IncRequest("image")
	m.IncRequest("image")
	m.IncRetries()
	m.IncError("timeout")
	m.IncCacheHit()
	m.IncRecord("created")
	m.IncThumb("generated")
	m.IncThumb("hit")
	m.IncSwept("deleted")
	m.ObserveDuration(150 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ThumbsTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweptTotal.WithLabelValues("deleted")))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncRequest("feed")
		m.ObserveDuration(time.Second)
		m.IncRetries()
		m.IncError("x")
		m.IncCacheHit()
		m.IncRecord("created")
		m.IncThumb("hit")
		m.IncSwept("kept")
	})
}
