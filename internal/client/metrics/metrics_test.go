package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObservePull(nil)
	m.ObservePull(errors.New("down"))
	m.ObservePush(nil)
	m.ObserveBackoff(0, time.Millisecond)
	m.ObserveBackoff(1, 2*time.Millisecond)
	m.ObserveReconcile("remote")
	m.ObserveReconcile("remote")
	m.ObserveReconcile("local")
	m.SetRecords(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pulls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pullFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushes))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pushFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pushRetries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconciliations.WithLabelValues("remote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliations.WithLabelValues("local")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.records))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePull(nil)
		m.ObservePush(errors.New("x"))
		m.ObserveBackoff(0, 0)
		m.ObserveReconcile("local")
		m.SetRecords(1)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetRecords(3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "storyline_records 3")
}
