package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/app/service/gateway"
	"github.com/retgrow/billing/internal/app/service/notifier"
	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/metrics"
	"github.com/retgrow/billing/pkg/tool"
	"github.com/retgrow/billing/pkg/types"
)

// errSettledElsewhere marks a lost conditional update; the caller reloads and reports
// the winner's outcome.
var errSettledElsewhere = errors.New("transaction settled by another writer")

// InitializePayment records a PENDING purchase and opens a provider checkout for it.
// No database transaction is held across the provider call.
func (s *Service) InitializePayment(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	log := logctx.FromCtx(ctx, s.log)
	if req.Plan == types.PlanFree {
		return nil, apperr.Validation("Cannot initialize payment for free plan")
	}
	if _, ok := types.ParsePlan(string(req.Plan)); !ok {
		return nil, apperr.Validationf("invalid plan: %s", req.Plan)
	}
	if _, ok := types.ParseBillingCycle(string(req.BillingCycle)); !ok {
		return nil, apperr.Validationf("invalid billing cycle: %s", req.BillingCycle)
	}
	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return nil, err
	}
	amount := types.PlanPrice(req.Plan, req.BillingCycle)
	if !amount.IsPositive() {
		return nil, apperr.Validation("Invalid plan amount")
	}

	current, err := s.subSvc.Effective(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Status == types.SubscriptionStatusActive &&
		current.Plan == req.Plan && current.Cycle() == req.BillingCycle {
		return nil, apperr.Conflict(fmt.Sprintf("You already have an active %s %s subscription",
			req.Plan.DisplayName(), req.BillingCycle.DisplayName()))
	}

	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = s.cfg.DefaultCallbackURL()
	}

	txn := &models.Transaction{
		ID:           tool.GenerateUUIDV7(),
		UserID:       req.UserID,
		Amount:       amount,
		Currency:     s.currency(),
		Provider:     req.Provider,
		Status:       types.TransactionStatusPending,
		Kind:         types.TransactionKindPurchase,
		Plan:         req.Plan,
		BillingCycle: req.BillingCycle,
		Metadata:     map[string]interface{}{"email": user.Email, "user_name": user.Name},
	}
	if err := s.createWithUniqueReference(ctx, txn); err != nil {
		return nil, err
	}

	res := gw.InitializePayment(ctx, &gateway.InitRequest{
		Amount:      amount,
		Currency:    txn.Currency,
		Email:       user.Email,
		Reference:   txn.Reference,
		CallbackURL: callbackURL,
		Description: fmt.Sprintf("%s plan (%s)", req.Plan.DisplayName(), req.BillingCycle.DisplayName()),
		Metadata: map[string]any{
			"plan":          string(req.Plan),
			"billing_cycle": string(req.BillingCycle),
			"user_id":       req.UserID,
			"user_name":     user.Name,
			"reference":     txn.Reference,
		},
	})
	if !res.OK {
		reason := res.Reason
		if reason == "" {
			reason = "Failed to initialize payment"
		}
		if _, err := s.fail(ctx, txn, reason, types.TransactionChangeReasonFailed); err != nil {
			log.Errorw("failed to mark transaction failed", "reference", txn.Reference, "error", err)
		}
		metrics.IncPayment(string(txn.Provider), string(txn.Kind), string(types.TransactionStatusFailed))
		log.Warnw("payment_initialize_failed", "reference", txn.Reference, "provider", txn.Provider, "reason", reason)
		return nil, apperr.Provider(reason, nil)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := *txn
		ext := res.ExternalReference
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).
			Updates(map[string]interface{}{"external_reference": ext, "updated_at": s.now()}).Error; err != nil {
			return err
		}
		txn.ExternalReference = &ext
		return s.writeLog(ctx, tx, types.TransactionChangeReasonInitiated, &before, txn, nil)
	})
	if err != nil {
		// the checkout exists; verification still works by reference
		log.Errorw("failed to store external reference", "reference", txn.Reference, "error", err)
	}

	log.Infow("payment_initialized", "reference", txn.Reference, "provider", txn.Provider, "plan", txn.Plan, "billing_cycle", txn.BillingCycle)
	return &InitializeResponse{
		Reference:        txn.Reference,
		AuthorizationURL: res.AuthorizationURL,
		Provider:         txn.Provider,
		Amount:           txn.Amount,
		Currency:         txn.Currency,
	}, nil
}

// VerifyAndActivate settles a purchase. Concurrent calls for one reference inside this
// process share a single provider round trip; across processes the conditional update
// guarantees a single subscription. The shared call outlives the caller that started it.
func (s *Service) VerifyAndActivate(ctx context.Context, reference string) (*VerifyOutcome, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.verifyGroup.Do(reference, func() (interface{}, error) {
		return s.verifyAndActivate(shared, reference)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*VerifyOutcome)
	return &out, nil
}

func (s *Service) verifyAndActivate(ctx context.Context, reference string) (*VerifyOutcome, error) {
	log := logctx.FromCtx(ctx, s.log).With("reference", reference)
	txn, err := s.findByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	// renewal rows are settled only by the charge that created them
	if txn.IsTerminal() || txn.Kind == types.TransactionKindRenewal {
		return settledOutcome(txn), nil
	}

	gw, err := s.gateways.Get(txn.Provider)
	if err != nil {
		return nil, err
	}
	res := gw.VerifyPayment(ctx, &gateway.VerifyRequest{
		Reference:         txn.Reference,
		ExternalReference: lo.FromPtr(txn.ExternalReference),
	})

	if res.OK {
		if reason := mismatch(txn, &res); reason != "" {
			log.Errorw("payment_amount_mismatch", "reason", reason, "expected", txn.Amount, "got", res.Amount, "currency", res.Currency)
			res.OK = false
			res.Status = gateway.VerifyStatusFailed
			res.Reason = reason
		}
	}

	switch {
	case res.OK:
		out, err := s.activate(ctx, txn, &res)
		if errors.Is(err, errSettledElsewhere) {
			return s.reloadOutcome(ctx, reference)
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	case res.Status == gateway.VerifyStatusFailed:
		reason := res.Reason
		if reason == "" {
			reason = MessageVerifyFailed
		}
		won, err := s.fail(ctx, txn, reason, types.TransactionChangeReasonFailed)
		if err != nil {
			return nil, err
		}
		if !won {
			return s.reloadOutcome(ctx, reference)
		}
		metrics.IncPayment(string(txn.Provider), string(txn.Kind), string(types.TransactionStatusFailed))
		log.Infow("payment_failed", "reason", reason)
		out := outcomeOf(txn)
		out.Status = types.TransactionStatusFailed
		out.Message = reason
		return out, nil
	default:
		log.Infow("payment_pending", "reason", res.Reason)
		out := outcomeOf(txn)
		out.Message = MessagePending
		return out, nil
	}
}

// activate marks txn SUCCESS and mints the subscription in one database transaction.
func (s *Service) activate(ctx context.Context, txn *models.Transaction, res *gateway.VerifyResult) (*VerifyOutcome, error) {
	now := s.now()
	var sub *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := *txn
		updates := map[string]interface{}{
			"status":       types.TransactionStatusSuccess,
			"completed_at": now,
			"metadata":     mergeMetadata(txn.Metadata, map[string]interface{}{"verification_response": res.Raw}),
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

		sub, err = s.subSvc.Activate(ctx, tx, &subscription.ActivateRequest{
			UserID:    txn.UserID,
			Plan:      txn.Plan,
			Cycle:     txn.BillingCycle,
			Provider:  txn.Provider,
			Token:     res.Token,
			Now:       now,
			Reference: txn.Reference,
		})
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).Update("subscription_id", sub.ID).Error; err != nil {
			return fmt.Errorf("failed to link subscription: %w", err)
		}

		txn.Status = types.TransactionStatusSuccess
		txn.CompletedAt = &now
		txn.Metadata = updates["metadata"].(datatypes.JSONMap)
		txn.SubscriptionID = &sub.ID
		if ext, ok := updates["external_reference"].(string); ok {
			txn.ExternalReference = &ext
		}
		return s.writeLog(ctx, tx, types.TransactionChangeReasonSucceeded, &before, txn, nil)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncPayment(string(txn.Provider), string(txn.Kind), string(types.TransactionStatusSuccess))
	metrics.AddRevenue(txn.Currency, txn.Amount)
	s.notify.Notify(ctx, txn.UserID, notifier.EventPaymentSucceeded, map[string]any{
		"reference":     txn.Reference,
		"plan_name":     txn.Plan.DisplayName(),
		"billing_cycle": txn.BillingCycle.DisplayName(),
		"amount":        types.FormatAmount(txn.Currency, txn.Amount),
		"end_date":      sub.EndDate.Format("2006-01-02"),
	})
	logctx.FromCtx(ctx, s.log).Infow("payment_succeeded", "reference", txn.Reference, "subscription_id", sub.ID)

	out := outcomeOf(txn)
	out.Message = MessageActivated
	return out, nil
}

// fail moves a PENDING row to FAILED. It reports false when the row was already settled.
func (s *Service) fail(ctx context.Context, txn *models.Transaction, reason string, logReason types.TransactionChangeReason) (bool, error) {
	reason = truncate(reason, 512)
	var won bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := *txn
		now := s.now()
		var err error
		won, err = s.transition(ctx, tx, txn, map[string]interface{}{
			"status":         types.TransactionStatusFailed,
			"failure_reason": reason,
			"completed_at":   now,
			"metadata":       mergeMetadata(txn.Metadata, map[string]interface{}{"error": reason}),
		})
		if err != nil || !won {
			return err
		}
		txn.Status = types.TransactionStatusFailed
		txn.FailureReason = &reason
		txn.CompletedAt = &now
		txn.Metadata = mergeMetadata(txn.Metadata, map[string]interface{}{"error": reason})
		return s.writeLog(ctx, tx, logReason, &before, txn, nil)
	})
	return won, err
}

func (s *Service) reloadOutcome(ctx context.Context, reference string) (*VerifyOutcome, error) {
	txn, err := s.findByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	return settledOutcome(txn), nil
}

func outcomeOf(txn *models.Transaction) *VerifyOutcome {
	return &VerifyOutcome{
		Reference:      txn.Reference,
		Status:         txn.Status,
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		Plan:           txn.Plan,
		BillingCycle:   txn.BillingCycle,
		SubscriptionID: txn.SubscriptionID,
	}
}

// settledOutcome is the cached answer for a row this call does not settle.
func settledOutcome(txn *models.Transaction) *VerifyOutcome {
	out := outcomeOf(txn)
	out.Message = MessageAlreadyProcessed
	out.AlreadyProcessed = txn.IsTerminal()
	if !txn.IsTerminal() {
		out.Message = MessagePending
	}
	return out
}

// mismatch compares what the provider settled with what the ledger expected.
func mismatch(txn *models.Transaction, res *gateway.VerifyResult) string {
	if res.Currency != "" && !strings.EqualFold(res.Currency, txn.Currency) {
		return fmt.Sprintf("Currency mismatch: expected %s, got %s", txn.Currency, res.Currency)
	}
	if !res.Amount.Equal(txn.Amount) {
		return fmt.Sprintf("Amount mismatch: expected %s, got %s", txn.Amount.StringFixed(2), res.Amount.StringFixed(2))
	}
	return ""
}
