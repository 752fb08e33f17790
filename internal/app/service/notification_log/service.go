package notification_log

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save asynchronously persists a payment notification log. Nil input is ignored.
// The write is detached from ctx so it survives the request.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if log.ID == "" {
			log.ID = tool.GenerateUUIDV7()
		}
		if err := s.db.Save(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save notification log", "provider", log.Provider, "reference", log.Reference, "error", err)
		}
	}()
}

// Wait blocks until pending saves finish.
func (s *Service) Wait() { s.wg.Wait() }

// ListByReference returns the audit trail of one payment, oldest first.
func (s *Service) ListByReference(ctx context.Context, reference string) ([]*models.PaymentNotificationLog, error) {
	var rows []*models.PaymentNotificationLog
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Service) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			s.Wait()
			return nil
		}})
	}),
)
