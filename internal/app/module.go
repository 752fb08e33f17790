package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/retgrow/billing/internal/app/api/server"
	"github.com/retgrow/billing/internal/app/jobs"
	"github.com/retgrow/billing/internal/app/service/access"
	"github.com/retgrow/billing/internal/app/service/catalog"
	"github.com/retgrow/billing/internal/app/service/gateway"
	notificationhandler "github.com/retgrow/billing/internal/app/service/notification_handler"
	notificationlog "github.com/retgrow/billing/internal/app/service/notification_log"
	"github.com/retgrow/billing/internal/app/service/notifier"
	"github.com/retgrow/billing/internal/app/service/reconciler"
	"github.com/retgrow/billing/internal/app/service/renewal"
	"github.com/retgrow/billing/internal/app/service/statistics"
	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/platform/db"
	"github.com/retgrow/billing/internal/platform/redis"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 30 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	redis.Module,
	redis.LockModule,
	gateway.Module,
	catalog.Module,
	notifier.Module,
	subscription.Module,
	transaction.Module,
	notificationlog.Module,
	notificationhandler.Module,
	renewal.Module,
	reconciler.Module,
	access.Module,
	statistics.Module,
	jobs.Module,
	server.Module,
)
