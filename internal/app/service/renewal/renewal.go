// Package renewal re-charges subscriptions whose period has ended.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/app/service/catalog"
	"github.com/retgrow/billing/internal/app/service/notifier"
	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/internal/platform/redis"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/metrics"
	"github.com/retgrow/billing/pkg/types"
)

const (
	lockPrefix           = "billing:renewal:"
	defaultLockTTL       = 5 * time.Minute
	defaultFailureReason = "Insufficient funds or card error"
	exhaustedReason      = "renewal_failed_max_attempts"
	dateLayout           = "January 02, 2006"
)

type RunResult struct {
	Processed int      `json:"processed"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Details   []string `json:"details"`
}

type Service struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	db     *gorm.DB
	txnSvc *transaction.Service
	subSvc *subscription.Service
	users  catalog.UserDirectory
	notify notifier.Notifier
	locker redis.Locker
	now    func() time.Time
}

func NewService(
	cfg *config.Config,
	log *zap.SugaredLogger,
	db *gorm.DB,
	txnSvc *transaction.Service,
	subSvc *subscription.Service,
	users catalog.UserDirectory,
	notify notifier.Notifier,
	locker redis.Locker,
) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		db:     db,
		txnSvc: txnSvc,
		subSvc: subSvc,
		users:  users,
		notify: notify,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run charges every due subscription once. A failing candidate is recorded and the
// batch continues; only the initial query can fail the run.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	log := logctx.FromCtx(ctx, s.log)
	now := s.now()

	var rows []*models.Subscription
	err := s.db.WithContext(ctx).
		Where("auto_renew = ? AND plan <> ? AND payment_token IS NOT NULL AND payment_token <> '' AND end_date <= ? AND status IN ?",
			true, types.PlanFree, now, []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusCancelled}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due subscriptions: %w", err)
	}
	candidates := SelectCandidates(rows, now)
	log.Infow("renewal_run_started", "due_rows", len(rows), "candidates", len(candidates))

	res := &RunResult{Details: []string{}}
	for _, sub := range candidates {
		if err := ctx.Err(); err != nil {
			res.Details = append(res.Details, fmt.Sprintf("Error: %s - %v", sub.ID, err))
			break
		}
		s.renewOne(ctx, sub, res)
	}

	log.Infow("renewal_run_finished", "processed", res.Processed, "success", res.Success, "failed", res.Failed)
	return res, nil
}

func (s *Service) renewOne(ctx context.Context, sub *models.Subscription, res *RunResult) {
	log := logctx.FromCtx(ctx, s.log).With("subscription_id", sub.ID, "user_id", sub.UserID)

	key := lockPrefix + sub.UserID
	token, err := s.locker.TryLock(ctx, key, s.lockTTL())
	if errors.Is(err, redis.ErrLockHeld) {
		log.Infow("renewal_skipped_locked")
		metrics.IncRenewal("skipped")
		res.Details = append(res.Details, fmt.Sprintf("Skipped: %s (locked)", sub.ID))
		return
	}
	if err != nil {
		res.Processed++
		s.recordError(ctx, sub, res, fmt.Errorf("failed to acquire renewal lock: %w", err))
		return
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warnw("renewal_unlock_failed", "error", err)
		}
	}()

	// another worker may have renewed the row since it was selected
	fresh, err := s.subSvc.GetByID(ctx, s.db, sub.ID)
	if err != nil {
		res.Processed++
		s.recordError(ctx, sub, res, err)
		return
	}
	if !IsDue(fresh, s.now()) {
		res.Details = append(res.Details, fmt.Sprintf("Skipped: %s (no longer due)", sub.ID))
		return
	}
	res.Processed++

	user, err := s.users.GetUser(ctx, fresh.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			res.Failed++
			metrics.IncRenewal("failed")
			log.Errorw("renewal_user_missing")
			res.Details = append(res.Details, fmt.Sprintf("Failed: %s - user not found", fresh.ID))
			return
		}
		s.recordError(ctx, fresh, res, err)
		return
	}

	charge, err := s.txnSvc.ChargeRenewal(ctx, fresh, user.Email)
	if err != nil {
		s.recordError(ctx, fresh, res, err)
		return
	}

	if charge.OK {
		res.Success++
		metrics.IncRenewal("success")
		res.Details = append(res.Details, fmt.Sprintf("Renewed: %s (%s)", fresh.ID, fresh.UserID))
		end := charge.Subscription.EndDate
		log.Infow("renewal_succeeded", "reference", charge.Transaction.Reference, "end_date", end)
		s.notify.Notify(ctx, fresh.UserID, notifier.EventRenewalSucceeded, map[string]any{
			"plan_name":         fresh.Plan.DisplayName(),
			"billing_cycle":     fresh.Cycle().DisplayName(),
			"amount":            types.FormatAmount(charge.Transaction.Currency, charge.Transaction.Amount),
			"date":              s.now().Format(dateLayout),
			"next_renewal_date": end.Format(dateLayout),
		})
		return
	}

	res.Failed++
	metrics.IncRenewal("failed")
	reason := charge.Reason
	if reason == "" {
		reason = defaultFailureReason
	}
	res.Details = append(res.Details, fmt.Sprintf("Failed: %s - %s", fresh.ID, reason))
	log.Warnw("renewal_failed", "reference", charge.Transaction.Reference, "reason", reason)
	s.notify.Notify(ctx, fresh.UserID, notifier.EventRenewalFailed, map[string]any{
		"plan_name":      fresh.Plan.DisplayName(),
		"failure_reason": reason,
	})

	if exhausted, err := s.maybeExhaust(ctx, fresh); err != nil {
		log.Errorw("renewal_dunning_failed", "error", err)
	} else if exhausted {
		res.Details = append(res.Details, fmt.Sprintf("Exhausted: %s - auto-renew stopped", fresh.ID))
	}
}

// maybeExhaust stops auto-renew once the row has failed max_failed_attempts times in a
// row. A successful renewal moves end_date forward, which resets the count.
func (s *Service) maybeExhaust(ctx context.Context, sub *models.Subscription) (bool, error) {
	limit := s.cfg.Renewal.MaxFailedAttempts
	if limit <= 0 || sub.EndDate == nil {
		return false, nil
	}
	failures, err := s.txnSvc.CountFailedRenewals(ctx, sub.ID, *sub.EndDate)
	if err != nil {
		return false, err
	}
	if failures < int64(limit) {
		return false, nil
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.subSvc.ExhaustRenewal(ctx, tx, sub, s.now(), exhaustedReason)
		return err
	})
	if err != nil {
		return false, err
	}
	metrics.IncRenewal("exhausted")
	logctx.FromCtx(ctx, s.log).Warnw("renewal_exhausted", "subscription_id", sub.ID, "user_id", sub.UserID, "failures", failures)
	return true, nil
}

func (s *Service) recordError(ctx context.Context, sub *models.Subscription, res *RunResult, err error) {
	res.Failed++
	metrics.IncRenewal("error")
	logctx.FromCtx(ctx, s.log).Errorw("renewal_error", "subscription_id", sub.ID, "user_id", sub.UserID, "error", err)
	res.Details = append(res.Details, fmt.Sprintf("Error: %s - %v", sub.ID, err))
}

func (s *Service) lockTTL() time.Duration {
	if s.cfg.Renewal.LockTTL > 0 {
		return s.cfg.Renewal.LockTTL
	}
	return defaultLockTTL
}

var Module = fx.Options(
	fx.Provide(NewService),
)
