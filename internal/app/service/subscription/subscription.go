package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/tool"
	"github.com/retgrow/billing/pkg/types"
)

const (
	MessageCancelled = "Subscription cancelled. Access continues until end of billing period."
	cancelReasonUser = "user_requested"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	now func() time.Time
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

type ActivateRequest struct {
	UserID   string
	Plan     types.Plan
	Cycle    types.BillingCycle
	Provider types.PaymentProvider
	// Token is the recurring-charge credential; empty when the provider issued none.
	Token string
	Now   time.Time
	// Reference of the transaction that paid for the period, recorded in the change log.
	Reference string
}

// Activate supersedes every ACTIVE row of the user and inserts a fresh paid period.
// It must run inside the caller's transaction.
func (s *Service) Activate(ctx context.Context, tx *gorm.DB, req *ActivateRequest) (*models.Subscription, error) {
	if !req.Plan.IsPaid() {
		return nil, apperr.Validationf("cannot activate plan %q", req.Plan)
	}
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}
	extra := datatypes.JSONMap{"reference": req.Reference}

	if err := s.supersedeActive(ctx, tx, req.UserID, "", now, extra); err != nil {
		return nil, err
	}

	end := types.PeriodEnd(now, req.Cycle)
	cycle := req.Cycle
	provider := req.Provider
	sub := &models.Subscription{
		ID:              tool.GenerateUUIDV7(),
		UserID:          req.UserID,
		Plan:            req.Plan,
		BillingCycle:    &cycle,
		Status:          types.SubscriptionStatusActive,
		StartDate:       now,
		EndDate:         &end,
		AutoRenew:       true,
		PaymentProvider: &provider,
	}
	if req.Token != "" {
		token := req.Token
		sub.PaymentToken = &token
	}
	if err := tx.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	if err := s.writeLog(ctx, tx, types.SubscriptionChangeReasonPurchase, nil, sub, extra); err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("subscription_activated",
		"user_id", req.UserID, "subscription_id", sub.ID, "plan", sub.Plan, "billing_cycle", cycle, "end_date", end)
	return sub, nil
}

// Renew extends sub by one billing cycle from now and makes it the user's ACTIVE row.
func (s *Service) Renew(ctx context.Context, tx *gorm.DB, sub *models.Subscription, now time.Time, reference string) (*models.Subscription, error) {
	extra := datatypes.JSONMap{"reference": reference}
	if err := s.supersedeActive(ctx, tx, sub.UserID, sub.ID, now, extra); err != nil {
		return nil, err
	}

	before := *sub
	end := types.PeriodEnd(now, sub.Cycle())
	updates := map[string]interface{}{
		"status":        types.SubscriptionStatusActive,
		"end_date":      end,
		"cancelled_at":  nil,
		"cancel_reason": nil,
	}
	if err := tx.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to renew subscription: %w", err)
	}
	after := before
	after.Status = types.SubscriptionStatusActive
	after.EndDate = &end
	after.CancelledAt = nil
	after.CancelReason = nil
	after.UpdatedAt = now
	if err := s.writeLog(ctx, tx, types.SubscriptionChangeReasonRenewal, &before, &after, extra); err != nil {
		return nil, err
	}
	return &after, nil
}

// ExhaustRenewal stops auto-renew and cancels sub, ending access through normal
// resolution since its end date is already behind.
func (s *Service) ExhaustRenewal(ctx context.Context, tx *gorm.DB, sub *models.Subscription, now time.Time, reason string) (*models.Subscription, error) {
	before := *sub
	updates := map[string]interface{}{
		"status":        types.SubscriptionStatusCancelled,
		"auto_renew":    false,
		"cancelled_at":  now,
		"cancel_reason": reason,
	}
	if err := tx.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to exhaust subscription: %w", err)
	}
	after := before
	after.Status = types.SubscriptionStatusCancelled
	after.AutoRenew = false
	after.CancelledAt = &now
	after.CancelReason = &reason
	if err := s.writeLog(ctx, tx, types.SubscriptionChangeReasonRenewalExhausted, &before, &after, datatypes.JSONMap{"reason": reason}); err != nil {
		return nil, err
	}
	return &after, nil
}

type CancelResult struct {
	Message      string
	EndDate      *time.Time
	Subscription *models.Subscription
}

// Cancel stops auto-renew on the effective subscription. Access continues until end_date.
func (s *Service) Cancel(ctx context.Context, userID, reason string) (*CancelResult, error) {
	if reason == "" {
		reason = cancelReasonUser
	}
	var result *CancelResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		rows, err := s.listWithTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		sub := ResolveEffective(rows, now)
		switch {
		case sub != nil && sub.Plan == types.PlanFree:
			return apperr.Validation("Cannot cancel free plan")
		case sub == nil:
			return apperr.NotFound("No active subscription found")
		case sub.Status == types.SubscriptionStatusCancelled:
			return apperr.Conflict("Subscription already cancelled")
		}

		before := *sub
		res := tx.WithContext(ctx).Model(&models.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, types.SubscriptionStatusActive).
			Updates(map[string]interface{}{
				"status":        types.SubscriptionStatusCancelled,
				"auto_renew":    false,
				"cancelled_at":  now,
				"cancel_reason": reason,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("Subscription already cancelled")
		}

		after := before
		after.Status = types.SubscriptionStatusCancelled
		after.AutoRenew = false
		after.CancelledAt = &now
		after.CancelReason = &reason
		if err := s.writeLog(ctx, tx, types.SubscriptionChangeReasonCancel, &before, &after, datatypes.JSONMap{"reason": reason}); err != nil {
			return err
		}
		result = &CancelResult{Message: MessageCancelled, EndDate: after.EndDate, Subscription: &after}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription_cancelled", "user_id", userID, "subscription_id", result.Subscription.ID)
	return result, nil
}

// GetCurrent returns the effective subscription, creating the default FREE row on first use.
func (s *Service) GetCurrent(ctx context.Context, userID string) (*models.Subscription, error) {
	now := s.now()
	rows, err := s.listWithTx(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if sub := ResolveEffective(rows, now); sub != nil {
		return sub, nil
	}

	free := &models.Subscription{
		ID:        tool.GenerateUUIDV7(),
		UserID:    userID,
		Plan:      types.PlanFree,
		Status:    types.SubscriptionStatusActive,
		StartDate: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(free).Error; err != nil {
			return err
		}
		return s.writeLog(ctx, tx, types.SubscriptionChangeReasonFreeDefault, nil, free, nil)
	})
	if err == nil {
		return free, nil
	}

	// a concurrent request may have inserted the ACTIVE row first
	rows, lerr := s.listWithTx(ctx, s.db, userID)
	if lerr != nil {
		return nil, lerr
	}
	if sub := ResolveEffective(rows, now); sub != nil {
		return sub, nil
	}
	return nil, fmt.Errorf("failed to create default subscription: %w", err)
}

// Effective returns the effective subscription without writing; nil when none qualifies.
func (s *Service) Effective(ctx context.Context, userID string) (*models.Subscription, error) {
	rows, err := s.listWithTx(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return ResolveEffective(rows, s.now()), nil
}

// ResolvePlan returns the effective plan without writing; FREE when nothing is effective.
func (s *Service) ResolvePlan(ctx context.Context, userID string) (types.Plan, error) {
	sub, err := s.Effective(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return types.PlanFree, nil
	}
	return sub.Plan, nil
}

// History lists every subscription row of the user, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]*models.Subscription, error) {
	rows, err := s.listWithTx(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	newestFirst(rows)
	return rows, nil
}

// GetByID loads one row; apperr.NotFound when it does not exist.
func (s *Service) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Subscription not found")
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *Service) listWithTx(ctx context.Context, tx *gorm.DB, userID string) ([]*models.Subscription, error) {
	var rows []*models.Subscription
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return rows, nil
}

// supersedeActive cancels every ACTIVE row of the user except keepID.
func (s *Service) supersedeActive(ctx context.Context, tx *gorm.DB, userID, keepID string, now time.Time, extra datatypes.JSONMap) error {
	q := tx.WithContext(ctx).Where("user_id = ? AND status = ?", userID, types.SubscriptionStatusActive)
	if keepID != "" {
		q = q.Where("id <> ?", keepID)
	}
	var active []*models.Subscription
	if err := q.Find(&active).Error; err != nil {
		return fmt.Errorf("failed to load active subscriptions: %w", err)
	}

	reason := string(types.SubscriptionChangeReasonSuperseded)
	for _, prev := range active {
		before := *prev
		if err := tx.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", prev.ID).Updates(map[string]interface{}{
			"status":        types.SubscriptionStatusCancelled,
			"auto_renew":    false,
			"cancelled_at":  now,
			"cancel_reason": reason,
		}).Error; err != nil {
			return fmt.Errorf("failed to supersede subscription %s: %w", prev.ID, err)
		}
		after := before
		after.Status = types.SubscriptionStatusCancelled
		after.AutoRenew = false
		after.CancelledAt = &now
		after.CancelReason = &reason
		if err := s.writeLog(ctx, tx, types.SubscriptionChangeReasonSuperseded, &before, &after, extra); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) writeLog(ctx context.Context, tx *gorm.DB, reason types.SubscriptionChangeReason, before, after *models.Subscription, extra datatypes.JSONMap) error {
	if extra == nil {
		extra = datatypes.JSONMap{}
	}
	row := &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		UserID:         after.UserID,
		SubscriptionID: after.ID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
		Extra:          extra,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save subscription log: %w", err)
	}
	return nil
}
