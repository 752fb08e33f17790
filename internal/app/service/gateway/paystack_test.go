package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newPaystackServer(t *testing.T, handler http.HandlerFunc) *Paystack {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaystack(PaystackOptions{SecretKey: "sk_test", BaseURL: srv.URL, Timeout: time.Second})
}

func TestPaystack_InitializePayment(t *testing.T) {
	var got map[string]any
	p := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"RL-1"}}`))
	})

	res := p.InitializePayment(context.Background(), &InitRequest{
		Amount:    decimal.RequireFromString("1500.00"),
		Currency:  "NGN",
		Email:     "a@b.c",
		Reference: "RL-1",
	})
	require.True(t, res.OK)
	require.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	require.Equal(t, "abc", res.ExternalReference)
	require.EqualValues(t, 150000, got["amount"])
	require.Equal(t, "RL-1", got["reference"])
}

func TestPaystack_InitializePayment_ProviderRejects(t *testing.T) {
	p := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
	})
	res := p.InitializePayment(context.Background(), &InitRequest{Amount: decimal.NewFromInt(10), Reference: "RL-2"})
	require.False(t, res.OK)
	require.Equal(t, "Invalid key", res.Reason)
}

func TestPaystack_VerifyPayment(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status VerifyStatus
		token  string
	}{
		{
			name:   "success with reusable authorization",
			body:   `{"status":true,"data":{"id":42,"status":"success","amount":150000,"currency":"NGN","authorization":{"authorization_code":"AUTH_x","reusable":true}}}`,
			status: VerifyStatusSuccess,
			token:  "AUTH_x",
		},
		{
			name:   "success without reusable authorization",
			body:   `{"status":true,"data":{"id":42,"status":"success","amount":150000,"currency":"NGN","authorization":{"authorization_code":"AUTH_x","reusable":false}}}`,
			status: VerifyStatusSuccess,
		},
		{
			name:   "abandoned is pending",
			body:   `{"status":true,"data":{"id":42,"status":"abandoned","amount":150000,"currency":"NGN"}}`,
			status: VerifyStatusPending,
		},
		{
			name:   "failed",
			body:   `{"status":true,"data":{"id":42,"status":"failed","gateway_response":"Declined","amount":150000,"currency":"NGN"}}`,
			status: VerifyStatusFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/transaction/verify/RL-1", r.URL.Path)
				_, _ = w.Write([]byte(tc.body))
			})
			res := p.VerifyPayment(context.Background(), &VerifyRequest{Reference: "RL-1"})
			require.Equal(t, tc.status, res.Status)
			require.Equal(t, tc.status == VerifyStatusSuccess, res.OK)
			require.Equal(t, tc.token, res.Token)
			require.True(t, decimal.RequireFromString("1500").Equal(res.Amount))
			require.Equal(t, "NGN", res.Currency)
		})
	}
}

func TestPaystack_VerifyPayment_TimeoutIsPending(t *testing.T) {
	p := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	p.client.Timeout = 20 * time.Millisecond

	res := p.VerifyPayment(context.Background(), &VerifyRequest{Reference: "RL-1"})
	require.False(t, res.OK)
	require.Equal(t, VerifyStatusPending, res.Status)
	require.NotEmpty(t, res.Reason)
}

func TestPaystack_ChargeSubscription(t *testing.T) {
	p := newPaystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/charge_authorization", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "AUTH_x", body["authorization_code"])
		_, _ = w.Write([]byte(`{"status":true,"data":{"id":7,"status":"success"}}`))
	})
	res := p.ChargeSubscription(context.Background(), &ChargeRequest{
		Amount: decimal.NewFromInt(1500), Token: "AUTH_x", Email: "a@b.c", Reference: "RL-9",
	})
	require.True(t, res.OK)
	require.Equal(t, "7", res.ExternalReference)

	res = p.ChargeSubscription(context.Background(), &ChargeRequest{Amount: decimal.NewFromInt(1500)})
	require.False(t, res.OK)
}

func TestPaystack_VerifyWebhookSignature(t *testing.T) {
	p := NewPaystack(PaystackOptions{SecretKey: "sk_test"})
	body := []byte(`{"event":"charge.success","data":{"reference":"RL-1"}}`)
	sig := SignHMACSHA512("sk_test", body)

	require.True(t, p.VerifyWebhookSignature(body, sig))
	tampered := append([]byte{}, body...)
	tampered[len(tampered)-3] = 'X'
	require.False(t, p.VerifyWebhookSignature(tampered, sig))
	require.False(t, p.VerifyWebhookSignature(body, ""))
	require.False(t, p.VerifyWebhookSignature(body, "not-hex"))
}
