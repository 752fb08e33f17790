package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/docs"
	"github.com/retgrow/billing/internal/app/api/handlers"
	mw "github.com/retgrow/billing/internal/app/api/middleware"
	"github.com/retgrow/billing/internal/app/service/access"
	nh "github.com/retgrow/billing/internal/app/service/notification_handler"
	"github.com/retgrow/billing/internal/app/service/renewal"
	"github.com/retgrow/billing/internal/app/service/statistics"
	subsvc "github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/app/service/transaction"
	cfgpkg "github.com/retgrow/billing/pkg/config"
	metrics "github.com/retgrow/billing/pkg/metrics"
)

type routeDeps struct {
	fx.In

	Log      *zap.SugaredLogger
	Cfg      *cfgpkg.Config
	DB       *gorm.DB
	Webhooks *nh.NotificationHandler
	TxMgr    transaction.TransactionManager
	Subs     *subsvc.Service
	Access   *access.Service
	Renewals *renewal.Service
	Stats    *statistics.Service
}

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func newPrometheus(log *zap.SugaredLogger, cfg *cfgpkg.Config) *metrics.Prometheus {
	if cfg.MetricsAddr == "" {
		return nil
	}
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
		ReqCntURLLabelMappingFn: func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return "unmatched"
		},
		Logger: log,
	})
	p.SetListenAddress(cfg.MetricsAddr)
	return p
}

func registerRoutes(r *gin.Engine, p *metrics.Prometheus, d routeDeps) {
	log := d.Log
	if p != nil {
		p.Use(r)
	}

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub, d.DB)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	auth := mw.AuthMiddleware(d.Cfg.Auth.JWTSecret, log)

	// Webhooks authenticate by provider signature, not by user token.
	handlers.RegisterWebhookRoutes(apiV1.Group("/payments"), d.Webhooks, log)
	handlers.RegisterPaymentRoutes(apiV1.Group("/payments", auth), d.TxMgr, log)
	handlers.RegisterSubscriptionRoutes(apiV1.Group("/subscriptions", auth), d.Subs, log)
	handlers.RegisterAccessRoutes(apiV1.Group("/access", auth), d.Access, log)
	handlers.RegisterCronRoutes(apiV1.Group("/cron", mw.CronSecretMiddleware(d.Cfg.Renewal.CronSecret)), d.Renewals, log)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin", auth, mw.RequireAdmin()), d.TxMgr, d.Stats, log)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine, p *metrics.Prometheus) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			if p != nil {
				p.Start()
				log.Infow("metrics started", "addr", cfg.MetricsAddr)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			if p != nil && p.Server() != nil {
				_ = p.Server().Shutdown(ctx)
			}
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Provide(newPrometheus),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
