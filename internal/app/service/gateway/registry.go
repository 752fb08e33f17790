package gateway

import (
	"context"
	"sort"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/metrics"
	"github.com/retgrow/billing/pkg/types"
)

// Registry maps providers to adapters. It is built once at startup and read-only after.
type Registry struct {
	gateways map[types.PaymentProvider]Gateway
}

func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[types.PaymentProvider]Gateway, len(gws))}
	for _, g := range gws {
		r.gateways[g.Provider()] = g
	}
	return r
}

// Get returns a validation error for unknown or unconfigured providers.
func (r *Registry) Get(provider types.PaymentProvider) (Gateway, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return nil, apperr.Validation("unsupported payment provider")
	}
	return g, nil
}

// Providers lists configured providers in a stable order.
func (r *Registry) Providers() []types.PaymentProvider {
	out := make([]types.PaymentProvider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewRegistryFromConfig wires every provider that has credentials configured.
func NewRegistryFromConfig(cfg *config.Config, l *zap.SugaredLogger) *Registry {
	var gws []Gateway
	if cfg.Paystack.SecretKey != "" {
		gws = append(gws, NewPaystack(PaystackOptions{
			SecretKey: cfg.Paystack.SecretKey,
			BaseURL:   cfg.Paystack.BaseURL,
			Timeout:   cfg.Gateway.Timeout,
		}))
	}
	if cfg.OPay.MerchantID != "" && cfg.OPay.SecretKey != "" {
		gws = append(gws, NewOPay(OPayOptions{
			MerchantID: cfg.OPay.MerchantID,
			PublicKey:  cfg.OPay.PublicKey,
			SecretKey:  cfg.OPay.SecretKey,
			BaseURL:    cfg.OPayBaseURL(),
			Timeout:    cfg.Gateway.Timeout,
		}))
	}
	if cfg.Stripe.SecretKey != "" {
		gws = append(gws, NewStripe(StripeOptions{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
			Timeout:       cfg.Gateway.Timeout,
		}))
	}

	for i, g := range gws {
		gws[i] = Instrument(g, l)
	}
	r := NewRegistry(gws...)
	if len(gws) == 0 {
		l.Warnw("no payment provider configured")
	} else {
		l.Infow("payment providers configured", "providers", r.Providers())
	}
	return r
}

// Instrument wraps g with provider-call latency metrics and failure logging.
func Instrument(g Gateway, l *zap.SugaredLogger) Gateway {
	return &instrumented{Gateway: g, l: l.With("provider", g.Provider())}
}

type instrumented struct {
	Gateway
	l *zap.SugaredLogger
}

func (i *instrumented) observe(op string, ok bool, reason string, start time.Time) {
	metrics.ObserveProviderCall(string(i.Provider()), op, ok, start)
	if !ok {
		i.l.Warnw("provider call unsuccessful", "op", op, "reason", reason, "elapsed_ms", metrics.MillisecondsSince(start))
	}
}

func (i *instrumented) InitializePayment(ctx context.Context, req *InitRequest) InitResult {
	start := time.Now()
	res := i.Gateway.InitializePayment(ctx, req)
	i.observe("initialize", res.OK, res.Reason, start)
	return res
}

func (i *instrumented) VerifyPayment(ctx context.Context, req *VerifyRequest) VerifyResult {
	start := time.Now()
	res := i.Gateway.VerifyPayment(ctx, req)
	i.observe("verify", res.OK || res.Status == VerifyStatusPending, res.Reason, start)
	return res
}

func (i *instrumented) ChargeSubscription(ctx context.Context, req *ChargeRequest) ChargeResult {
	start := time.Now()
	res := i.Gateway.ChargeSubscription(ctx, req)
	i.observe("charge", res.OK, res.Reason, start)
	return res
}

var Module = fx.Options(
	fx.Provide(NewRegistryFromConfig),
)
