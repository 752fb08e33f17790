package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/retgrow/billing/pkg/types"
)

const (
	opayCountry          = "NG"
	opayCashierExpireMin = 30
	opaySuccessCode      = "00000"

	// ReasonOPayRecurringUnsupported is the renewal failure for OPay subscriptions.
	ReasonOPayRecurringUnsupported = "Recurring payment is not yet supported for OPay provider."
)

type OPayOptions struct {
	MerchantID string
	PublicKey  string
	SecretKey  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OPay drives the OPay international cashier. It has no tokenised recurring charge.
type OPay struct {
	merchantID string
	publicKey  string
	secretKey  string
	baseURL    string
	client     *http.Client
}

func NewOPay(opts OPayOptions) *OPay {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &OPay{
		merchantID: opts.MerchantID,
		publicKey:  opts.PublicKey,
		secretKey:  opts.SecretKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		client:     client,
	}
}

func (o *OPay) Provider() types.PaymentProvider { return types.PaymentProviderOPay }

func (o *OPay) SignatureHeader() string { return "x-opay-signature" }

type opayAmount struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type opayEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type opayCreateData struct {
	Reference  string `json:"reference"`
	OrderNo    string `json:"orderNo"`
	CashierURL string `json:"cashierUrl"`
	Status     string `json:"status"`
}

type opayStatusData struct {
	Reference   string     `json:"reference"`
	OrderNo     string     `json:"orderNo"`
	Status      string     `json:"status"`
	Amount      opayAmount `json:"amount"`
	FailureCode string     `json:"failureCode"`
	FailureMsg  string     `json:"failureReason"`
}

func (o *OPay) InitializePayment(ctx context.Context, req *InitRequest) InitResult {
	currency := req.Currency
	if currency == "" {
		currency = types.DefaultCurrency
	}
	minor := types.ToMinorUnits(req.Amount)
	desc := req.Description
	if desc == "" {
		desc = "Subscription"
	}
	payload := map[string]any{
		"country":     opayCountry,
		"reference":   req.Reference,
		"amount":      opayAmount{Total: minor, Currency: currency},
		"returnUrl":   req.CallbackURL,
		"callbackUrl": req.CallbackURL,
		"cancelUrl":   req.CallbackURL,
		"expireAt":    opayCashierExpireMin,
		"userInfo":    map[string]string{"userEmail": req.Email},
		"product":     map[string]string{"name": desc, "description": desc},
		"productList": []map[string]any{{
			"productId":   req.Reference,
			"name":        desc,
			"description": desc,
			"price":       minor,
			"quantity":    1,
		}},
	}
	headers := map[string]string{
		"Authorization": "Bearer " + o.publicKey,
		"MerchantId":    o.merchantID,
	}

	var env opayEnvelope
	if _, err := doJSON(ctx, o.client, http.MethodPost, o.baseURL+"/api/v1/international/cashier/create", headers, payload, &env); err != nil {
		return initFailure(fmt.Sprintf("opay initialize failed: %v", err))
	}
	if env.Code != opaySuccessCode {
		return initFailure(messageOr(env.Message, "opay initialize failed"))
	}
	var data opayCreateData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CashierURL == "" {
		return initFailure("opay initialize returned no cashier url")
	}
	return InitResult{OK: true, AuthorizationURL: data.CashierURL, ExternalReference: data.OrderNo}
}

// VerifyPayment queries the cashier status. The status API authenticates with an
// HMAC-SHA512 of the exact request body instead of the public key.
func (o *OPay) VerifyPayment(ctx context.Context, req *VerifyRequest) VerifyResult {
	body, err := json.Marshal(map[string]string{"reference": req.Reference, "country": opayCountry})
	if err != nil {
		return verifyFailure(VerifyStatusPending, err.Error())
	}
	headers := map[string]string{
		"Authorization": "Bearer " + SignHMACSHA512(o.secretKey, body),
		"MerchantId":    o.merchantID,
	}

	var env opayEnvelope
	if _, err := doJSON(ctx, o.client, http.MethodPost, o.baseURL+"/api/v1/international/cashier/status", headers, json.RawMessage(body), &env); err != nil {
		return verifyFailure(VerifyStatusPending, fmt.Sprintf("opay verify failed: %v", err))
	}
	if env.Code != opaySuccessCode {
		return verifyFailure(VerifyStatusFailed, messageOr(env.Message, "Payment verification failed"))
	}
	var data opayStatusData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return verifyFailure(VerifyStatusPending, "opay verify returned malformed data")
	}

	res := VerifyResult{
		Amount:            types.FromMinorUnits(data.Amount.Total),
		Currency:          strings.ToUpper(data.Amount.Currency),
		ExternalReference: data.OrderNo,
		Raw:               toMap(data),
	}
	switch strings.ToUpper(data.Status) {
	case "SUCCESS":
		res.OK = true
		res.Status = VerifyStatusSuccess
	case "INITIAL", "PENDING":
		res.Status = VerifyStatusPending
		res.Reason = "Payment not completed yet"
	case "CLOSE":
		res.Status = VerifyStatusFailed
		res.Reason = "Payment cancelled"
	default:
		res.Status = VerifyStatusFailed
		res.Reason = messageOr(data.FailureMsg, "Payment failed")
	}
	return res
}

func (o *OPay) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifyHMACSHA512(o.secretKey, body, signature)
}

func (o *OPay) ChargeSubscription(context.Context, *ChargeRequest) ChargeResult {
	return chargeFailure(ReasonOPayRecurringUnsupported)
}
