package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	require.NoError(t, err)

	p.RecordRequest(true, 120*time.Millisecond)
	p.RecordRequest(false, 20*time.Second)
	p.RecordCacheHit()
	p.RecordRegistrar("porkbun", OutcomeAvailable, 300*time.Millisecond)
	p.RecordRegistrar("godaddy", OutcomeTimeout, 10*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requests.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.registrarRequests.WithLabelValues("godaddy", OutcomeTimeout)))
	assert.Equal(t, 2, testutil.CollectAndCount(p.registrarDuration))
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg)
	require.NoError(t, err)

	_, err = NewPrometheus(reg)
	assert.Error(t, err)
}

func TestPrometheus_Handler(t *testing.T) {
	p, err := NewPrometheus(nil)
	require.NoError(t, err)
	p.RecordCacheHit()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "dotprice_pricing_cache_hits_total 1"))
}

func TestSummary(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := NewSummary(logger)

	assert.Equal(t, 0.0, s.Snapshot().SuccessRate())

	s.RecordRequest(true, 100*time.Millisecond)
	s.RecordRequest(true, 300*time.Millisecond)
	s.RecordRequest(false, 200*time.Millisecond)
	s.RecordRequest(true, 200*time.Millisecond)
	s.RecordCacheHit()
	s.RecordRegistrar("porkbun", OutcomeAvailable, time.Second)
	s.RecordRegistrar("porkbun", OutcomeError, time.Second)

	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
	assert.Equal(t, 75.0, snap.SuccessRate())
	assert.Equal(t, 200*time.Millisecond, snap.AverageTime)
	assert.Equal(t, int64(1), snap.Registrars["porkbun"][OutcomeError])

	s.LogSummary()
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, int64(1), hook.LastEntry().Data["cache_hits"])
}

func TestMulti(t *testing.T) {
	a := NewSummary(logrus.New())
	b := NewSummary(logrus.New())
	var r Recorder = Multi{a, b, Nop{}}

	r.RecordRequest(true, time.Millisecond)
	r.RecordCacheHit()

	assert.Equal(t, int64(1), a.Snapshot().TotalRequests)
	assert.Equal(t, int64(1), b.Snapshot().CacheHits)
}
