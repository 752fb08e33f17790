package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/retgrow/billing/pkg/config"
)

func newTestEngine(t *testing.T, cfg *cfgpkg.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := newEngine(cfg)
	registerRoutes(r, nil, routeDeps{Log: zap.NewNop().Sugar(), Cfg: cfg})
	return r
}

func TestRegisterRoutes_RegistersEndpoints(t *testing.T) {
	r := newTestEngine(t, &cfgpkg.Config{})

	got := lo.Map(r.Routes(), func(rt gin.RouteInfo, _ int) string { return rt.Method + " " + rt.Path })
	for _, want := range []string{
		"GET /healthz",
		"POST /api/v1/payments/initialize",
		"GET /api/v1/payments/verify/:reference",
		"GET /api/v1/payments/history",
		"POST /api/v1/payments/webhook/:provider",
		"GET /api/v1/subscriptions/current",
		"GET /api/v1/subscriptions/history",
		"POST /api/v1/subscriptions/cancel",
		"GET /api/v1/access/courses/:course_id/modules/:module_id",
		"GET /api/v1/access/courses/:course_id/modules",
		"GET /api/v1/access/courses/:course_id/enrollment",
		"POST /api/v1/cron/renew-subscriptions",
		"POST /api/v1/admin/list_transactions",
		"POST /api/v1/admin/get_billing_statistic",
	} {
		require.Contains(t, got, want)
	}
}

func TestRegisterRoutes_Guards(t *testing.T) {
	cfg := &cfgpkg.Config{}
	cfg.Auth.JWTSecret = "secret"
	r := newTestEngine(t, cfg)

	serve := func(method, path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w.Code
	}
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/healthz"))
	require.Equal(t, http.StatusUnauthorized, serve(http.MethodPost, "/api/v1/payments/initialize"))
	require.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/api/v1/subscriptions/current"))
	require.Equal(t, http.StatusUnauthorized, serve(http.MethodPost, "/api/v1/admin/list_transactions"))
	// no cron secret configured
	require.Equal(t, http.StatusServiceUnavailable, serve(http.MethodPost, "/api/v1/cron/renew-subscriptions"))
}
