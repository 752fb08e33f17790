package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/app/service/catalog"
	"github.com/retgrow/billing/internal/app/service/gateway"
	"github.com/retgrow/billing/internal/app/service/notifier"
	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/internal/platform/db/dbtest"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/tool"
	"github.com/retgrow/billing/pkg/types"
)

type verifyGateway struct {
	results map[string]gateway.VerifyResult
	calls   []string
}

func (g *verifyGateway) Provider() types.PaymentProvider { return types.PaymentProviderOPay }
func (g *verifyGateway) SignatureHeader() string         { return "x-opay-signature" }
func (g *verifyGateway) VerifyWebhookSignature([]byte, string) bool {
	return false
}
func (g *verifyGateway) InitializePayment(context.Context, *gateway.InitRequest) gateway.InitResult {
	return gateway.InitResult{}
}
func (g *verifyGateway) VerifyPayment(_ context.Context, req *gateway.VerifyRequest) gateway.VerifyResult {
	g.calls = append(g.calls, req.Reference)
	if r, ok := g.results[req.Reference]; ok {
		return r
	}
	return gateway.VerifyResult{Status: gateway.VerifyStatusPending}
}
func (g *verifyGateway) ChargeSubscription(context.Context, *gateway.ChargeRequest) gateway.ChargeResult {
	return gateway.ChargeResult{Reason: gateway.ReasonOPayRecurringUnsupported}
}

func pending(t *testing.T, gdb *gorm.DB, ref string, age time.Duration, ext string) {
	t.Helper()
	pendingWith(t, gdb, ref, age, ext, types.PaymentProviderOPay)
}

func pendingWith(t *testing.T, gdb *gorm.DB, ref string, age time.Duration, ext string, provider types.PaymentProvider) {
	t.Helper()
	txn := &models.Transaction{
		ID:           tool.GenerateUUIDV7(),
		UserID:       "u-" + ref,
		Amount:       decimal.NewFromInt(700),
		Currency:     "NGN",
		Provider:     provider,
		Reference:    ref,
		Status:       types.TransactionStatusPending,
		Kind:         types.TransactionKindPurchase,
		Plan:         types.PlanFocused,
		BillingCycle: types.BillingCycleMonthly,
		CreatedAt:    time.Now().UTC().Add(-age),
	}
	if ext != "" {
		txn.ExternalReference = lo.ToPtr(ext)
	}
	require.NoError(t, gdb.Create(txn).Error)
}

func status(t *testing.T, gdb *gorm.DB, ref string) *models.Transaction {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, gdb.Where("reference = ?", ref).First(&txn).Error)
	return &txn
}

func newReconciler(t *testing.T, gw *verifyGateway) (*Reconciler, *gorm.DB, *subscription.Service) {
	t.Helper()
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{}
	cfg.Billing.Currency = "NGN"
	cfg.Catalog.CacheSize = 8
	cfg.Catalog.CacheTTL = time.Minute
	cfg.Reconciler.StaleAfter = 15 * time.Minute
	cfg.Reconciler.ExpireAfter = 24 * time.Hour
	cfg.Reconciler.BatchSize = 10

	subs := subscription.NewService(gdb, log)
	txns := transaction.NewService(cfg, log, gdb, gateway.NewRegistry(gw), subs, catalog.NewStore(gdb, log, cfg), notifier.Nop{})
	return New(cfg, log, txns), gdb, subs
}

func TestReconciler_Run(t *testing.T) {
	gw := &verifyGateway{results: map[string]gateway.VerifyResult{
		"RL-PAID": {OK: true, Status: gateway.VerifyStatusSuccess, Amount: decimal.NewFromInt(700), Currency: "NGN"},
	}}
	r, gdb, subs := newReconciler(t, gw)

	pending(t, gdb, "RL-PAID", 30*time.Minute, "ord-1")
	pending(t, gdb, "RL-OLD", 48*time.Hour, "ord-2")
	pending(t, gdb, "RL-OLD-NOEXT", 30*time.Hour, "")
	pending(t, gdb, "RL-WAITING", time.Hour, "ord-3")
	pending(t, gdb, "RL-FRESH", 5*time.Minute, "ord-4")

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, &Result{Checked: 4, Settled: 1, Expired: 2}, res)

	require.Equal(t, types.TransactionStatusSuccess, status(t, gdb, "RL-PAID").Status)
	plan, err := subs.ResolvePlan(context.Background(), "u-RL-PAID")
	require.NoError(t, err)
	require.Equal(t, types.PlanFocused, plan)

	old := status(t, gdb, "RL-OLD")
	require.Equal(t, types.TransactionStatusFailed, old.Status)
	require.Equal(t, ReasonSessionExpired, *old.FailureReason)
	require.Equal(t, types.TransactionStatusFailed, status(t, gdb, "RL-OLD-NOEXT").Status)

	require.Equal(t, types.TransactionStatusPending, status(t, gdb, "RL-WAITING").Status)
	require.Equal(t, types.TransactionStatusPending, status(t, gdb, "RL-FRESH").Status)
}

func TestReconciler_VerifiesByReferenceWithoutExternalID(t *testing.T) {
	gw := &verifyGateway{results: map[string]gateway.VerifyResult{
		"RL-NOEXT-PAID": {OK: true, Status: gateway.VerifyStatusSuccess, Amount: decimal.NewFromInt(700), Currency: "NGN"},
	}}
	r, gdb, _ := newReconciler(t, gw)

	pending(t, gdb, "RL-NOEXT-PAID", time.Hour, "")
	pendingWith(t, gdb, "RL-STRIPE-NOEXT", 48*time.Hour, "", types.PaymentProviderStripe)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, &Result{Checked: 2, Settled: 1, Expired: 1}, res)
	require.Equal(t, []string{"RL-NOEXT-PAID"}, gw.calls)

	require.Equal(t, types.TransactionStatusSuccess, status(t, gdb, "RL-NOEXT-PAID").Status)
	require.Equal(t, types.TransactionStatusFailed, status(t, gdb, "RL-STRIPE-NOEXT").Status)
}
