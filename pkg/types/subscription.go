package types

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonPurchase         SubscriptionChangeReason = "purchase"
	SubscriptionChangeReasonSuperseded       SubscriptionChangeReason = "superseded"
	SubscriptionChangeReasonCancel           SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonRenewal          SubscriptionChangeReason = "renewal"
	SubscriptionChangeReasonRenewalExhausted SubscriptionChangeReason = "renewal_exhausted"
	SubscriptionChangeReasonFreeDefault      SubscriptionChangeReason = "free_default"
)
