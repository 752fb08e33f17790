package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/retgrow/billing/pkg/types"
)

const defaultPaystackBaseURL = "https://api.paystack.co"

type PaystackOptions struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Paystack talks to the Paystack REST API. Amounts are sent in kobo.
type Paystack struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewPaystack(opts PaystackOptions) *Paystack {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultPaystackBaseURL
	}
	return &Paystack{secretKey: opts.SecretKey, baseURL: base, client: client}
}

func (p *Paystack) Provider() types.PaymentProvider { return types.PaymentProviderPaystack }

func (p *Paystack) SignatureHeader() string { return "x-paystack-signature" }

func (p *Paystack) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.secretKey}
}

type paystackAuthorization struct {
	AuthorizationCode string `json:"authorization_code"`
	Reusable          bool   `json:"reusable"`
	Channel           string `json:"channel"`
}

type paystackTransaction struct {
	ID              int64                  `json:"id"`
	Status          string                 `json:"status"`
	Reference       string                 `json:"reference"`
	Amount          int64                  `json:"amount"`
	Currency        string                 `json:"currency"`
	GatewayResponse string                 `json:"gateway_response"`
	Authorization   *paystackAuthorization `json:"authorization"`
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type paystackTransactionResponse struct {
	Status  bool                `json:"status"`
	Message string              `json:"message"`
	Data    paystackTransaction `json:"data"`
}

func (p *Paystack) InitializePayment(ctx context.Context, req *InitRequest) InitResult {
	payload := map[string]any{
		"email":        req.Email,
		"amount":       types.ToMinorUnits(req.Amount),
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"currency":     req.Currency,
		"metadata":     req.Metadata,
	}
	var out paystackInitResponse
	if _, err := doJSON(ctx, p.client, http.MethodPost, p.baseURL+"/transaction/initialize", p.headers(), payload, &out); err != nil {
		return initFailure(fmt.Sprintf("paystack initialize failed: %v", err))
	}
	if !out.Status {
		return initFailure(messageOr(out.Message, "paystack initialize failed"))
	}
	ext := out.Data.AccessCode
	if ext == "" {
		ext = out.Data.Reference
	}
	return InitResult{OK: true, AuthorizationURL: out.Data.AuthorizationURL, ExternalReference: ext}
}

func (p *Paystack) VerifyPayment(ctx context.Context, req *VerifyRequest) VerifyResult {
	var out paystackTransactionResponse
	endpoint := p.baseURL + "/transaction/verify/" + url.PathEscape(req.Reference)
	if _, err := doJSON(ctx, p.client, http.MethodGet, endpoint, p.headers(), nil, &out); err != nil {
		return verifyFailure(VerifyStatusPending, fmt.Sprintf("paystack verify failed: %v", err))
	}
	if !out.Status {
		return verifyFailure(VerifyStatusFailed, messageOr(out.Message, "Payment verification failed"))
	}

	res := VerifyResult{
		Amount:            types.FromMinorUnits(out.Data.Amount),
		Currency:          strings.ToUpper(out.Data.Currency),
		ExternalReference: fmt.Sprint(out.Data.ID),
		Raw:               toMap(out.Data),
	}
	switch strings.ToLower(out.Data.Status) {
	case "success":
		res.OK = true
		res.Status = VerifyStatusSuccess
		if a := out.Data.Authorization; a != nil && a.Reusable && a.AuthorizationCode != "" {
			res.Token = a.AuthorizationCode
		}
	case "abandoned", "ongoing", "pending", "processing", "queued":
		res.Status = VerifyStatusPending
		res.Reason = "Payment not completed yet"
	default:
		res.Status = VerifyStatusFailed
		res.Reason = messageOr(out.Data.GatewayResponse, "Payment verification failed")
	}
	return res
}

func (p *Paystack) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifyHMACSHA512(p.secretKey, body, signature)
}

// ChargeSubscription re-charges a reusable authorization code.
func (p *Paystack) ChargeSubscription(ctx context.Context, req *ChargeRequest) ChargeResult {
	if req.Token == "" {
		return chargeFailure("missing authorization code")
	}
	payload := map[string]any{
		"authorization_code": req.Token,
		"email":              req.Email,
		"amount":             types.ToMinorUnits(req.Amount),
		"reference":          req.Reference,
		"currency":           req.Currency,
		"metadata":           req.Metadata,
	}
	var out paystackTransactionResponse
	if _, err := doJSON(ctx, p.client, http.MethodPost, p.baseURL+"/transaction/charge_authorization", p.headers(), payload, &out); err != nil {
		return chargeFailure(fmt.Sprintf("paystack charge failed: %v", err))
	}
	if !out.Status {
		return chargeFailure(messageOr(out.Message, "paystack charge failed"))
	}
	if !strings.EqualFold(out.Data.Status, "success") {
		return chargeFailure(messageOr(out.Data.GatewayResponse, "charge "+out.Data.Status))
	}
	return ChargeResult{OK: true, ExternalReference: fmt.Sprint(out.Data.ID)}
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
