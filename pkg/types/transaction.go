package types

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

type TransactionKind string

const (
	TransactionKindPurchase TransactionKind = "PURCHASE"
	TransactionKindRenewal  TransactionKind = "RENEWAL"
)

type TransactionChangeReason string

const (
	TransactionChangeReasonCreated   TransactionChangeReason = "created"
	TransactionChangeReasonInitiated TransactionChangeReason = "initiated"
	TransactionChangeReasonSucceeded TransactionChangeReason = "succeeded"
	TransactionChangeReasonFailed    TransactionChangeReason = "failed"
	TransactionChangeReasonExpired   TransactionChangeReason = "expired"
)
