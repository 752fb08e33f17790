package notification_handler

import (
	"context"
	"fmt"

	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/types"
)

// NotificationParser reads a provider webhook envelope whose signature has already
// been checked.
type NotificationParser interface {
	GetProvider(ctx context.Context) types.PaymentProvider
	GetEventType(ctx context.Context) string
	// GetReference is the ledger reference the event is about; empty when absent.
	GetReference(ctx context.Context) string
	IsPaymentSucceeded(ctx context.Context) bool
	GetData(ctx context.Context) any
}

// GetNotificationParser decodes body for provider. Malformed JSON is a validation error.
func GetNotificationParser(provider types.PaymentProvider, body []byte) (NotificationParser, error) {
	var (
		p   NotificationParser
		err error
	)
	switch provider {
	case types.PaymentProviderPaystack:
		p, err = newPaystackParser(body)
	case types.PaymentProviderOPay:
		p, err = newOPayParser(body)
	case types.PaymentProviderStripe:
		p, err = newStripeParser(body)
	default:
		return nil, apperr.Validation("unsupported payment provider")
	}
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid %s webhook payload", provider.Lower()))
	}
	return p, nil
}
