package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func stripeSignatureHeader(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripe_VerifyWebhookSignature(t *testing.T) {
	s := NewStripe(StripeOptions{SecretKey: "sk_test_x", WebhookSecret: "whsec_test"})
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"client_reference_id":"RL-1"}}}`)

	header := stripeSignatureHeader("whsec_test", payload, time.Now())
	require.True(t, s.VerifyWebhookSignature(payload, header))
	require.False(t, s.VerifyWebhookSignature([]byte(`{"type":"tampered"}`), header))
	require.False(t, s.VerifyWebhookSignature(payload, stripeSignatureHeader("whsec_other", payload, time.Now())))
	require.False(t, s.VerifyWebhookSignature(payload, ""))
}

func TestStripe_VerifyPayment(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status VerifyStatus
		token  string
	}{
		{
			name: "paid",
			body: `{"id":"cs_1","object":"checkout.session","payment_status":"paid","status":"complete","amount_total":150000,"currency":"ngn",
				"customer":"cus_1","payment_intent":{"id":"pi_1","object":"payment_intent","payment_method":{"id":"pm_1","object":"payment_method"}}}`,
			status: VerifyStatusSuccess,
			token:  "cus_1:pm_1",
		},
		{
			name:   "open and unpaid",
			body:   `{"id":"cs_1","object":"checkout.session","payment_status":"unpaid","status":"open","amount_total":150000,"currency":"ngn"}`,
			status: VerifyStatusPending,
		},
		{
			name:   "expired",
			body:   `{"id":"cs_1","object":"checkout.session","payment_status":"unpaid","status":"expired","amount_total":150000,"currency":"ngn"}`,
			status: VerifyStatusFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			s := NewStripe(StripeOptions{SecretKey: "sk_test_x", BaseURL: srv.URL, Timeout: time.Second})
			res := s.VerifyPayment(context.Background(), &VerifyRequest{Reference: "RL-1", ExternalReference: "cs_1"})
			require.Equal(t, tc.status, res.Status)
			require.Equal(t, tc.token, res.Token)
			require.True(t, decimal.NewFromInt(1500).Equal(res.Amount))
			require.Equal(t, "NGN", res.Currency)
		})
	}
}

func TestStripe_VerifyPayment_NoSessionID(t *testing.T) {
	s := NewStripe(StripeOptions{SecretKey: "sk_test_x"})
	res := s.VerifyPayment(context.Background(), &VerifyRequest{Reference: "RL-1"})
	require.False(t, res.OK)
	require.Equal(t, VerifyStatusPending, res.Status)
}

func TestStripe_ChargeSubscription_InvalidToken(t *testing.T) {
	s := NewStripe(StripeOptions{SecretKey: "sk_test_x"})
	res := s.ChargeSubscription(context.Background(), &ChargeRequest{Token: "AUTH_paystack"})
	require.False(t, res.OK)
}

func TestWithReference(t *testing.T) {
	require.Equal(t, "http://x/cb?reference=RL-1", withReference("http://x/cb", "RL-1"))
	require.Equal(t, "http://x/cb?a=1&reference=RL-1", withReference("http://x/cb?a=1", "RL-1"))
	require.Empty(t, withReference("", "RL-1"))
}
