package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCacheCounters(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.CacheHit("alpha")
	m.CacheHit("alpha")
	m.CacheMiss("alpha")
	m.CacheError("liveStats")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("alpha", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("alpha", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("liveStats")))
}

func TestTxAndUpstream(t *testing.T) {
	m := NewMetrics("test", nil)
	m.OnTxEvent(domain.TxEvent{Kind: domain.OpBet, State: domain.TxSubmitted})
	m.OnTxEvent(domain.TxEvent{Kind: domain.OpBet, State: domain.TxConfirmed, GasUsed: 90_000})
	m.RecordUpstream("neynar", time.Now(), nil)
	m.RecordUpstream("neynar", time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TxTransitions.WithLabelValues("bet", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("neynar", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("neynar", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics("test", nil)
	m.CacheHit("nextAlphaId")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_query_requests_total{name="nextAlphaId",outcome="hit"} 1`))
}
