package notification_handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/retgrow/billing/pkg/types"
)

// OPayNotification covers both callback shapes OPay sends: the reference either at the
// top level or under payload/data.
type OPayNotification struct {
	Type      string `json:"type"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Data      struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
	Payload struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"payload"`
}

type OPayNotificationParser struct {
	Notification *OPayNotification
	raw          map[string]any
}

func newOPayParser(body []byte) (*OPayNotificationParser, error) {
	var n OPayNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return &OPayNotificationParser{Notification: &n, raw: raw}, nil
}

func (p *OPayNotificationParser) GetProvider(context.Context) types.PaymentProvider {
	return types.PaymentProviderOPay
}

func (p *OPayNotificationParser) GetEventType(context.Context) string {
	if p.Notification.Type != "" {
		return p.Notification.Type
	}
	return "transaction-status"
}

func (p *OPayNotificationParser) GetReference(context.Context) string {
	n := p.Notification
	switch {
	case n.Data.Reference != "":
		return n.Data.Reference
	case n.Payload.Reference != "":
		return n.Payload.Reference
	}
	return n.Reference
}

func (p *OPayNotificationParser) status() string {
	n := p.Notification
	switch {
	case n.Data.Status != "":
		return n.Data.Status
	case n.Payload.Status != "":
		return n.Payload.Status
	}
	return n.Status
}

func (p *OPayNotificationParser) IsPaymentSucceeded(context.Context) bool {
	return strings.EqualFold(p.status(), "success")
}

func (p *OPayNotificationParser) GetData(context.Context) any {
	return p.raw
}
