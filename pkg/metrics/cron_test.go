package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "pending_order_expiry"

	before := time.Now().Unix()
	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("db down"))
	m.ObserveRun(job, 100*time.Millisecond, nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok, err := series(mfs, "shopledger_cron_job_runs_total", map[string]string{"job": job, "result": "ok"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), ok.GetCounter().GetValue())

	failed, err := series(mfs, "shopledger_cron_job_runs_total", map[string]string{"job": job, "result": "error"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), failed.GetCounter().GetValue())

	hist, err := series(mfs, "shopledger_cron_job_duration_seconds", map[string]string{"job": job})
	require.NoError(t, err)
	assert.EqualValues(t, 3, hist.GetHistogram().GetSampleCount())
	assert.InDelta(t, 1.35, hist.GetHistogram().GetSampleSum(), 0.001)

	last, err := series(mfs, "shopledger_cron_job_last_success_timestamp_seconds", map[string]string{"job": job})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, last.GetGauge().GetValue(), float64(before))
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	m := NewCronJobMetrics(nil)
	assert.Nil(t, m)
	m.ObserveRun("session_sweep", time.Second, nil)
}
