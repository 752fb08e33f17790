package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	p := NewPrometheus(NewPrometheusOptions{Subsystem: "test"})
	p.Use(r)
	r.GET("/payments/verify/:reference", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/verify/RL-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `test_req_total{code="200",method="GET",ref="",url="/payments/verify/:reference"} 1`)
	require.False(t, strings.Contains(body, "RL-1"))
}

func TestBillingCounters(t *testing.T) {
	before := testutil.ToFloat64(paymentsTotal.WithLabelValues("paystack", "purchase", "success"))
	IncPayment("PAYSTACK", "PURCHASE", "SUCCESS")
	require.Equal(t, before+1, testutil.ToFloat64(paymentsTotal.WithLabelValues("paystack", "purchase", "success")))

	rev := testutil.ToFloat64(paymentsRevenueTotal.WithLabelValues("ngn"))
	AddRevenue("NGN", decimal.RequireFromString("700.50"))
	require.Equal(t, rev+70050, testutil.ToFloat64(paymentsRevenueTotal.WithLabelValues("ngn")))

	IncRenewal("")
	require.Equal(t, float64(1), testutil.ToFloat64(renewalsTotal.WithLabelValues("unknown")))
}

func TestMillisecondsSince(t *testing.T) {
	require.GreaterOrEqual(t, MillisecondsSince(time.Now().Add(-10*time.Millisecond)), float64(10))
}
