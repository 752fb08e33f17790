package types

import "strings"

type PaymentProvider string

const (
	PaymentProviderPaystack PaymentProvider = "PAYSTACK"
	PaymentProviderOPay     PaymentProvider = "OPAY"
	PaymentProviderStripe   PaymentProvider = "STRIPE"
)

var paymentProviders = []PaymentProvider{
	PaymentProviderPaystack,
	PaymentProviderOPay,
	PaymentProviderStripe,
}

// ParsePaymentProvider accepts the provider name in any case ("paystack", "PAYSTACK").
func ParsePaymentProvider(s string) (PaymentProvider, bool) {
	p := PaymentProvider(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range paymentProviders {
		if p == known {
			return p, true
		}
	}
	return "", false
}

func (p PaymentProvider) Lower() string {
	return strings.ToLower(string(p))
}
