package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/retgrow/billing/pkg/types"
)

const stripeSessionPrefix = "cs_"

type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL points the SDK at stripe-mock or a test server.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Stripe uses hosted Checkout Sessions for purchases and off-session PaymentIntents
// for renewals.
type Stripe struct {
	webhookSecret string
	sessions      *session.Client
	intents       *paymentintent.Client
}

func NewStripe(opts StripeOptions) *Stripe {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	cfg := &stripe.BackendConfig{HTTPClient: client}
	if opts.BaseURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(opts.BaseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	return &Stripe{
		webhookSecret: opts.WebhookSecret,
		sessions:      &session.Client{B: backend, Key: opts.SecretKey},
		intents:       &paymentintent.Client{B: backend, Key: opts.SecretKey},
	}
}

func (s *Stripe) Provider() types.PaymentProvider { return types.PaymentProviderStripe }

func (s *Stripe) SignatureHeader() string { return "Stripe-Signature" }

func (s *Stripe) InitializePayment(ctx context.Context, req *InitRequest) InitResult {
	desc := req.Description
	if desc == "" {
		desc = "Subscription"
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		SuccessURL:        stripe.String(withReference(req.CallbackURL, req.Reference)),
		CancelURL:         stripe.String(withReference(req.CallbackURL, req.Reference)),
		CustomerCreation:  stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(types.ToMinorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(desc),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("reference", req.Reference)
	for k, v := range req.Metadata {
		params.AddMetadata(k, fmt.Sprint(v))
	}

	sess, err := s.sessions.New(params)
	if err != nil {
		return initFailure(fmt.Sprintf("stripe checkout failed: %v", err))
	}
	return InitResult{OK: true, AuthorizationURL: sess.URL, ExternalReference: sess.ID}
}

func (s *Stripe) VerifyPayment(ctx context.Context, req *VerifyRequest) VerifyResult {
	id := req.ExternalReference
	if id == "" && strings.HasPrefix(req.Reference, stripeSessionPrefix) {
		id = req.Reference
	}
	if id == "" {
		return verifyFailure(VerifyStatusPending, "stripe session id unknown")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	sess, err := s.sessions.Get(id, params)
	if err != nil {
		if se, ok := err.(*stripe.Error); ok && se.HTTPStatusCode == http.StatusNotFound {
			return verifyFailure(VerifyStatusFailed, "stripe session not found")
		}
		return verifyFailure(VerifyStatusPending, fmt.Sprintf("stripe verify failed: %v", err))
	}

	res := VerifyResult{
		Amount:            types.FromMinorUnits(sess.AmountTotal),
		Currency:          strings.ToUpper(string(sess.Currency)),
		ExternalReference: sess.ID,
		Raw: map[string]any{
			"id":             sess.ID,
			"payment_status": string(sess.PaymentStatus),
			"status":         string(sess.Status),
		},
	}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		res.OK = true
		res.Status = VerifyStatusSuccess
		res.Token = stripeToken(sess)
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		res.Status = VerifyStatusFailed
		res.Reason = "Checkout session expired"
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid:
		res.Status = VerifyStatusPending
		res.Reason = "Payment not completed yet"
	default:
		res.Status = VerifyStatusFailed
		res.Reason = "Payment verification failed"
	}
	return res
}

func (s *Stripe) VerifyWebhookSignature(body []byte, signature string) bool {
	if s.webhookSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(body, signature, s.webhookSecret) == nil
}

// ChargeSubscription confirms an off-session PaymentIntent against a token produced by
// VerifyPayment. The ledger reference doubles as the idempotency key.
func (s *Stripe) ChargeSubscription(ctx context.Context, req *ChargeRequest) ChargeResult {
	customer, method, ok := strings.Cut(req.Token, ":")
	if !ok || customer == "" || method == "" {
		return chargeFailure("invalid stripe payment token")
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(types.ToMinorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(customer),
		PaymentMethod: stripe.String(method),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata("reference", req.Reference)

	pi, err := s.intents.New(params)
	if err != nil {
		return chargeFailure(fmt.Sprintf("stripe charge failed: %v", err))
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return chargeFailure("stripe charge " + string(pi.Status))
	}
	return ChargeResult{OK: true, ExternalReference: pi.ID}
}

func stripeToken(sess *stripe.CheckoutSession) string {
	pi := sess.PaymentIntent
	if pi == nil || pi.PaymentMethod == nil || pi.PaymentMethod.ID == "" {
		return ""
	}
	customer := ""
	switch {
	case sess.Customer != nil:
		customer = sess.Customer.ID
	case pi.Customer != nil:
		customer = pi.Customer.ID
	}
	if customer == "" {
		return ""
	}
	return customer + ":" + pi.PaymentMethod.ID
}

func withReference(callback, reference string) string {
	if callback == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(callback, "?") {
		sep = "&"
	}
	return callback + sep + "reference=" + reference
}
