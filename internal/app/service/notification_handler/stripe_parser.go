package notification_handler

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v76"

	"github.com/retgrow/billing/pkg/types"
)

type StripeNotificationParser struct {
	Event   *stripe.Event
	Session *stripe.CheckoutSession
}

func newStripeParser(body []byte) (*StripeNotificationParser, error) {
	var evt stripe.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, err
	}
	p := &StripeNotificationParser{Event: &evt}
	if evt.Data != nil && len(evt.Data.Raw) > 0 && evt.Type == stripe.EventTypeCheckoutSessionCompleted {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return nil, err
		}
		p.Session = &sess
	}
	return p, nil
}

func (p *StripeNotificationParser) GetProvider(context.Context) types.PaymentProvider {
	return types.PaymentProviderStripe
}

func (p *StripeNotificationParser) GetEventType(context.Context) string {
	return string(p.Event.Type)
}

func (p *StripeNotificationParser) GetReference(context.Context) string {
	if p.Session == nil {
		return ""
	}
	if p.Session.ClientReferenceID != "" {
		return p.Session.ClientReferenceID
	}
	return p.Session.Metadata["reference"]
}

func (p *StripeNotificationParser) IsPaymentSucceeded(context.Context) bool {
	return p.Event.Type == stripe.EventTypeCheckoutSessionCompleted
}

func (p *StripeNotificationParser) GetData(context.Context) any {
	return p.Event
}
