package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/types"
)

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(NewOPay(OPayOptions{}), NewPaystack(PaystackOptions{}))

	g, err := r.Get(types.PaymentProviderPaystack)
	require.NoError(t, err)
	require.Equal(t, types.PaymentProviderPaystack, g.Provider())

	_, err = r.Get(types.PaymentProviderStripe)
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, []types.PaymentProvider{types.PaymentProviderOPay, types.PaymentProviderPaystack}, r.Providers())
}

func TestNewRegistryFromConfig_SkipsUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paystack.SecretKey = "sk"
	cfg.OPay.MerchantID = "m"

	r := NewRegistryFromConfig(cfg, zap.NewNop().Sugar())
	require.Equal(t, []types.PaymentProvider{types.PaymentProviderPaystack}, r.Providers())

	g, err := r.Get(types.PaymentProviderPaystack)
	require.NoError(t, err)
	_, wrapped := g.(*instrumented)
	require.True(t, wrapped)
}

func TestInstrumented_PassesThrough(t *testing.T) {
	g := Instrument(NewOPay(OPayOptions{}), zap.NewNop().Sugar())
	res := g.ChargeSubscription(context.Background(), &ChargeRequest{})
	require.Equal(t, ReasonOPayRecurringUnsupported, res.Reason)
	require.Equal(t, "x-opay-signature", g.SignatureHeader())
}
