package notification_handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/app/service/gateway"
	notificationlog "github.com/retgrow/billing/internal/app/service/notification_log"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/internal/platform/db/dbtest"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/types"
)

const (
	paystackSecret = "sk_test_paystack"
	opaySecret     = "opay_secret"
	stripeWebhook  = "whsec_test"
)

type fakeLedger struct {
	transaction.TransactionManager

	mu       sync.Mutex
	verified []string
	err      error
}

func (f *fakeLedger) VerifyAndActivate(_ context.Context, reference string) (*transaction.VerifyOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, reference)
	if f.err != nil {
		return nil, f.err
	}
	return &transaction.VerifyOutcome{Reference: reference, Status: types.TransactionStatusSuccess, Message: transaction.MessageActivated}, nil
}

func newHandler(t *testing.T) (*NotificationHandler, *fakeLedger, *notificationlog.Service, *gorm.DB) {
	t.Helper()
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	reg := gateway.NewRegistry(
		gateway.NewPaystack(gateway.PaystackOptions{SecretKey: paystackSecret}),
		gateway.NewOPay(gateway.OPayOptions{MerchantID: "m1", SecretKey: opaySecret}),
		gateway.NewStripe(gateway.StripeOptions{SecretKey: "sk_test_stripe", WebhookSecret: stripeWebhook}),
	)
	ledger := &fakeLedger{}
	audit := notificationlog.New(gdb, log)
	return NewNotificationHandler(reg, ledger, audit, log), ledger, audit, gdb
}

func stripeSignature(payload []byte) string {
	now := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(stripeWebhook))
	_, _ = fmt.Fprintf(mac, "%d.%s", now, payload)
	return fmt.Sprintf("t=%d,v1=%s", now, hex.EncodeToString(mac.Sum(nil)))
}

func auditStatuses(t *testing.T, gdb *gorm.DB, audit *notificationlog.Service) []models.PaymentNotificationLogStatus {
	t.Helper()
	audit.Wait()
	var rows []models.PaymentNotificationLog
	require.NoError(t, gdb.Order("created_at ASC").Find(&rows).Error)
	out := make([]models.PaymentNotificationLogStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Status)
	}
	return out
}

func TestHandleNotification_SettlesSucceededPayments(t *testing.T) {
	cases := []struct {
		name     string
		provider types.PaymentProvider
		body     string
		sign     func([]byte) string
	}{
		{
			name:     "paystack",
			provider: types.PaymentProviderPaystack,
			body:     `{"event":"charge.success","data":{"reference":"RL-PS","status":"success","amount":150000}}`,
			sign:     func(b []byte) string { return gateway.SignHMACSHA512(paystackSecret, b) },
		},
		{
			name:     "opay",
			provider: types.PaymentProviderOPay,
			body:     `{"data":{"reference":"RL-OP","status":"SUCCESS"}}`,
			sign:     func(b []byte) string { return gateway.SignHMACSHA512(opaySecret, b) },
		},
		{
			name:     "stripe",
			provider: types.PaymentProviderStripe,
			body:     `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","client_reference_id":"RL-ST"}}}`,
			sign:     stripeSignature,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, ledger, audit, gdb := newHandler(t)
			body := []byte(tc.body)

			res, err := h.HandleNotification(context.Background(), tc.provider, body, tc.sign(body))
			require.NoError(t, err)
			require.Equal(t, OutcomeHandled, res.Outcome)
			require.Equal(t, types.TransactionStatusSuccess, res.Status)
			require.Len(t, ledger.verified, 1)
			require.Equal(t, res.Reference, ledger.verified[0])
			require.ElementsMatch(t, []models.PaymentNotificationLogStatus{
				models.PaymentNotificationLogStatusReceived,
				models.PaymentNotificationLogStatusHandled,
			}, auditStatuses(t, gdb, audit))

			trail, err := audit.ListByReference(context.Background(), res.Reference)
			require.NoError(t, err)
			require.Len(t, trail, 2)
		})
	}
}

func TestHandleNotification_RejectsTamperedBodies(t *testing.T) {
	cases := []struct {
		provider types.PaymentProvider
		body     string
		sign     func([]byte) string
	}{
		{types.PaymentProviderPaystack, `{"event":"charge.success","data":{"reference":"RL-1"}}`, func(b []byte) string { return gateway.SignHMACSHA512(paystackSecret, b) }},
		{types.PaymentProviderOPay, `{"data":{"reference":"RL-1","status":"SUCCESS"}}`, func(b []byte) string { return gateway.SignHMACSHA512(opaySecret, b) }},
		{types.PaymentProviderStripe, `{"type":"checkout.session.completed","data":{"object":{"client_reference_id":"RL-1"}}}`, stripeSignature},
	}
	for _, tc := range cases {
		t.Run(string(tc.provider), func(t *testing.T) {
			h, ledger, audit, gdb := newHandler(t)
			sig := tc.sign([]byte(tc.body))
			tampered := []byte(tc.body[:len(tc.body)-1] + ` `)

			_, err := h.HandleNotification(context.Background(), tc.provider, tampered, sig)
			require.ErrorIs(t, err, apperr.ErrSignature)

			_, err = h.HandleNotification(context.Background(), tc.provider, []byte(tc.body), "")
			require.ErrorIs(t, err, apperr.ErrSignature)

			require.Empty(t, ledger.verified)
			require.Equal(t, []models.PaymentNotificationLogStatus{
				models.PaymentNotificationLogStatusRejected,
				models.PaymentNotificationLogStatusRejected,
			}, auditStatuses(t, gdb, audit))
		})
	}
}

func TestHandleNotification_IgnoresOtherEvents(t *testing.T) {
	h, ledger, audit, gdb := newHandler(t)
	body := []byte(`{"event":"transfer.success","data":{"reference":"RL-9"}}`)

	res, err := h.HandleNotification(context.Background(), types.PaymentProviderPaystack, body, gateway.SignHMACSHA512(paystackSecret, body))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Equal(t, "transfer.success", res.EventType)
	require.Empty(t, ledger.verified)
	require.Contains(t, auditStatuses(t, gdb, audit), models.PaymentNotificationLogStatusIgnored)
}

func TestHandleNotification_UnknownReferenceIsAcknowledged(t *testing.T) {
	h, ledger, _, _ := newHandler(t)
	ledger.err = apperr.NotFound("Transaction not found")
	body := []byte(`{"event":"charge.success","data":{"reference":"RL-GHOST"}}`)

	res, err := h.HandleNotification(context.Background(), types.PaymentProviderPaystack, body, gateway.SignHMACSHA512(paystackSecret, body))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
}

func TestHandleNotification_InternalErrorIsAuditedAndAcknowledged(t *testing.T) {
	h, ledger, audit, gdb := newHandler(t)
	ledger.err = fmt.Errorf("database is down")
	body := []byte(`{"event":"charge.success","data":{"reference":"RL-1"}}`)

	res, err := h.HandleNotification(context.Background(), types.PaymentProviderPaystack, body, gateway.SignHMACSHA512(paystackSecret, body))
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)

	audit.Wait()
	var row models.PaymentNotificationLog
	require.NoError(t, gdb.Where("status = ?", models.PaymentNotificationLogStatusHandleFailed).First(&row).Error)
	require.Equal(t, "RL-1", row.Reference)
	require.Contains(t, string(*row.Result), "database is down")
}

func TestHandleNotification_BadInput(t *testing.T) {
	h, _, _, _ := newHandler(t)

	_, err := h.HandleNotification(context.Background(), "APPLE", []byte(`{}`), "sig")
	require.ErrorIs(t, err, apperr.ErrValidation)

	body := []byte(`not json`)
	_, err = h.HandleNotification(context.Background(), types.PaymentProviderPaystack, body, gateway.SignHMACSHA512(paystackSecret, body))
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOPayParser_ReferenceLocations(t *testing.T) {
	p, err := newOPayParser([]byte(`{"reference":"RL-TOP","status":"success"}`))
	require.NoError(t, err)
	require.Equal(t, "RL-TOP", p.GetReference(context.Background()))
	require.True(t, p.IsPaymentSucceeded(context.Background()))

	p, err = newOPayParser([]byte(`{"payload":{"reference":"RL-P","status":"FAIL"}}`))
	require.NoError(t, err)
	require.Equal(t, "RL-P", p.GetReference(context.Background()))
	require.False(t, p.IsPaymentSucceeded(context.Background()))
}

func TestStripeParser_MetadataReference(t *testing.T) {
	p, err := newStripeParser([]byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"reference":"RL-M"}}}}`))
	require.NoError(t, err)
	require.Equal(t, "RL-M", p.GetReference(context.Background()))

	p, err = newStripeParser([]byte(`{"type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`))
	require.NoError(t, err)
	require.Empty(t, p.GetReference(context.Background()))
	require.False(t, p.IsPaymentSucceeded(context.Background()))
}

func TestSignatureHeader(t *testing.T) {
	h, _, _, _ := newHandler(t)

	hdr, err := h.SignatureHeader(types.PaymentProviderPaystack)
	require.NoError(t, err)
	require.Equal(t, "x-paystack-signature", hdr)

	hdr, err = h.SignatureHeader(types.PaymentProviderStripe)
	require.NoError(t, err)
	require.Equal(t, "Stripe-Signature", hdr)

	_, err = h.SignatureHeader("APPLE")
	require.ErrorIs(t, err, apperr.ErrValidation)
}
