package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/app/service/gateway"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/metrics"
	"github.com/retgrow/billing/pkg/tool"
	"github.com/retgrow/billing/pkg/types"
)

const MetadataTypeRenewal = "renewal"

type RenewalCharge struct {
	Transaction *models.Transaction
	// Subscription is the renewed row; nil when the charge failed.
	Subscription *models.Subscription
	OK           bool
	Reason       string
}

// ChargeRenewal records a RENEWAL transaction for sub, charges its stored token and
// settles the ledger row and the subscription through the same conditional update as
// purchases. A declined charge is a result, not an error.
func (s *Service) ChargeRenewal(ctx context.Context, sub *models.Subscription, email string) (*RenewalCharge, error) {
	provider := sub.Provider()
	if provider == "" {
		provider = types.PaymentProviderPaystack
	}
	txn := &models.Transaction{
		ID:             tool.GenerateUUIDV7(),
		UserID:         sub.UserID,
		SubscriptionID: lo.ToPtr(sub.ID),
		Amount:         types.PlanPrice(sub.Plan, sub.Cycle()),
		Currency:       s.currency(),
		Provider:       provider,
		Status:         types.TransactionStatusPending,
		Kind:           types.TransactionKindRenewal,
		Plan:           sub.Plan,
		BillingCycle:   sub.Cycle(),
		Metadata:       map[string]interface{}{"type": MetadataTypeRenewal, "email": email},
	}
	if err := s.createWithUniqueReference(ctx, txn); err != nil {
		return nil, err
	}

	var res gateway.ChargeResult
	if gw, err := s.gateways.Get(provider); err != nil {
		res.Reason = apperr.MessageOf(err)
	} else {
		res = gw.ChargeSubscription(ctx, &gateway.ChargeRequest{
			Amount:    txn.Amount,
			Currency:  txn.Currency,
			Email:     email,
			Token:     lo.FromPtr(sub.PaymentToken),
			Reference: txn.Reference,
			Metadata: map[string]any{
				"type":            MetadataTypeRenewal,
				"subscription_id": sub.ID,
				"user_id":         sub.UserID,
			},
		})
	}

	if !res.OK {
		reason := res.Reason
		if reason == "" {
			reason = "Renewal charge failed"
		}
		if _, err := s.fail(ctx, txn, reason, types.TransactionChangeReasonFailed); err != nil {
			return nil, err
		}
		metrics.IncPayment(string(provider), string(txn.Kind), string(types.TransactionStatusFailed))
		return &RenewalCharge{Transaction: txn, OK: false, Reason: reason}, nil
	}

	now := s.now()
	var renewed *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := *txn
		updates := map[string]interface{}{
			"status":       types.TransactionStatusSuccess,
			"completed_at": now,
		}
		if res.ExternalReference != "" {
			updates["external_reference"] = res.ExternalReference
		}
		won, err := s.transition(ctx, tx, txn, updates)
		if err != nil {
			return err
		}
		if !won {
			return errSettledElsewhere
		}
		renewed, err = s.subSvc.Renew(ctx, tx, sub, now, txn.Reference)
		if err != nil {
			return err
		}
		txn.Status = types.TransactionStatusSuccess
		txn.CompletedAt = &now
		if res.ExternalReference != "" {
			txn.ExternalReference = lo.ToPtr(res.ExternalReference)
		}
		return s.writeLog(ctx, tx, types.TransactionChangeReasonSucceeded, &before, txn, nil)
	})
	if err != nil {
		// the provider took the money; this needs an operator
		logctx.FromCtx(ctx, s.log).Errorw("renewal_settle_failed", "reference", txn.Reference, "subscription_id", sub.ID, "error", err)
		return nil, fmt.Errorf("failed to settle renewal %s: %w", txn.Reference, err)
	}

	metrics.IncPayment(string(provider), string(txn.Kind), string(types.TransactionStatusSuccess))
	metrics.AddRevenue(txn.Currency, txn.Amount)
	return &RenewalCharge{Transaction: txn, Subscription: renewed, OK: true}, nil
}

// CountFailedRenewals counts declined renewal charges for a subscription since a point
// in time. A successful renewal moves end_date forward, so counting from the current
// end_date yields consecutive failures.
func (s *Service) CountFailedRenewals(ctx context.Context, subscriptionID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("subscription_id = ? AND kind = ? AND status = ? AND created_at >= ?",
			subscriptionID, types.TransactionKindRenewal, types.TransactionStatusFailed, since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count failed renewals: %w", err)
	}
	return n, nil
}

// ListStalePending returns PENDING purchases created before the cutoff, oldest first.
func (s *Service) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Transaction, error) {
	var rows []*models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND kind = ? AND created_at < ?", types.TransactionStatusPending, types.TransactionKindPurchase, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	return rows, nil
}

// Expire fails an abandoned PENDING row. It reports false when the row was already settled.
func (s *Service) Expire(ctx context.Context, txn *models.Transaction, reason string) (bool, error) {
	won, err := s.fail(ctx, txn, reason, types.TransactionChangeReasonExpired)
	if err == nil && won {
		metrics.IncPayment(string(txn.Provider), string(txn.Kind), string(types.TransactionStatusFailed))
	}
	return won, err
}
