package notification_handler

import (
	"context"
	"encoding/json"

	"github.com/retgrow/billing/pkg/types"
)

const paystackEventChargeSuccess = "charge.success"

type PaystackNotification struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

type PaystackNotificationParser struct {
	Notification *PaystackNotification
	raw          map[string]any
}

func newPaystackParser(body []byte) (*PaystackNotificationParser, error) {
	var n PaystackNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return &PaystackNotificationParser{Notification: &n, raw: raw}, nil
}

func (p *PaystackNotificationParser) GetProvider(context.Context) types.PaymentProvider {
	return types.PaymentProviderPaystack
}

func (p *PaystackNotificationParser) GetEventType(context.Context) string {
	return p.Notification.Event
}

func (p *PaystackNotificationParser) GetReference(context.Context) string {
	return p.Notification.Data.Reference
}

func (p *PaystackNotificationParser) IsPaymentSucceeded(context.Context) bool {
	return p.Notification.Event == paystackEventChargeSuccess
}

func (p *PaystackNotificationParser) GetData(context.Context) any {
	return p.raw
}
