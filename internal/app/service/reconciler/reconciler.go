// Package reconciler settles purchases whose checkout never reported back.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/types"
)

const ReasonSessionExpired = "Payment session expired"

type Result struct {
	Checked int `json:"checked"`
	Settled int `json:"settled"`
	Expired int `json:"expired"`
	Errors  int `json:"errors"`
}

type Reconciler struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	txnSvc *transaction.Service
	now    func() time.Time
}

func New(cfg *config.Config, log *zap.SugaredLogger, txnSvc *transaction.Service) *Reconciler {
	return &Reconciler{cfg: cfg, log: log, txnSvc: txnSvc, now: func() time.Time { return time.Now().UTC() }}
}

// Run re-verifies PENDING purchases older than stale_after. Rows the provider still
// reports as pending after expire_after are failed.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	log := logctx.FromCtx(ctx, r.log)
	now := r.now()
	staleAfter := r.cfg.Reconciler.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	expireAfter := r.cfg.Reconciler.ExpireAfter
	if expireAfter <= 0 {
		expireAfter = 24 * time.Hour
	}
	batch := r.cfg.Reconciler.BatchSize
	if batch <= 0 {
		batch = 100
	}

	rows, err := r.txnSvc.ListStalePending(ctx, now.Add(-staleAfter), batch)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, txn := range rows {
		if ctx.Err() != nil {
			break
		}
		res.Checked++
		status := types.TransactionStatusPending
		if canVerify(txn) {
			out, err := r.txnSvc.VerifyAndActivate(ctx, txn.Reference)
			if err != nil {
				res.Errors++
				log.Warnw("reconcile_verify_failed", "reference", txn.Reference, "error", err)
				continue
			}
			status = out.Status
		}
		if status != types.TransactionStatusPending {
			res.Settled++
			continue
		}
		if now.Sub(txn.CreatedAt) < expireAfter {
			continue
		}
		won, err := r.txnSvc.Expire(ctx, txn, ReasonSessionExpired)
		if err != nil {
			res.Errors++
			log.Warnw("reconcile_expire_failed", "reference", txn.Reference, "error", err)
			continue
		}
		if won {
			res.Expired++
		}
	}

	if res.Checked > 0 {
		log.Infow("reconcile_finished", "checked", res.Checked, "settled", res.Settled, "expired", res.Expired, "errors", res.Errors)
	}
	return res, nil
}

// canVerify reports whether the provider can look txn up. Stripe verifies by checkout
// session id; Paystack and OPay verify by our reference.
func canVerify(txn *models.Transaction) bool {
	if txn.Provider != types.PaymentProviderStripe {
		return true
	}
	return txn.ExternalReference != nil && *txn.ExternalReference != ""
}

var Module = fx.Options(
	fx.Provide(New),
)
