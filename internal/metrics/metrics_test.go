package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ContributionCreated(KindRoot)
	m.ContributionCreated(KindChild)
	m.ContributionCreated(KindChild)
	m.ContributionFailed("validation")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.created.WithLabelValues(KindRoot)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.created.WithLabelValues(KindChild)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("validation")))
}

func TestMetrics_ObserveLineage(t *testing.T) {
	m := New()

	m.ObserveLineage(3, false)
	m.ObserveLineage(2, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.truncated))
	assert.Equal(t, 1, testutil.CollectAndCount(m.depth))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ContributionCreated(KindRoot)
		m.ContributionFailed("internal")
		m.ObserveLineage(1, true)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ContributionCreated(KindRoot)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `vault_contributions_created_total{kind="root"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
