package handlers

import (
	"github.com/retgrow/billing/internal/app/service/access"
	nh "github.com/retgrow/billing/internal/app/service/notification_handler"
	"github.com/retgrow/billing/internal/app/service/renewal"
	"github.com/retgrow/billing/internal/app/service/statistics"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/pkg/response"
)

// RespOK is a generic envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespInitializePayment struct {
	Code    response.APIResponseCode       `json:"code"`
	Message string                         `json:"message"`
	Data    transaction.InitializeResponse `json:"data"`
}

type RespVerifyPayment struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    transaction.VerifyOutcome `json:"data"`
}

type RespListTransactions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListTransactionsResponse `json:"data"`
}

type RespListAdminTransactions struct {
	Code    response.APIResponseCode      `json:"code"`
	Message string                        `json:"message"`
	Data    ListAdminTransactionsResponse `json:"data"`
}

type RespWebhook struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    nh.HandleResult          `json:"data"`
}

type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SubscriptionItem         `json:"data"`
}

type RespSubscriptionHistory struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []SubscriptionItem       `json:"data"`
}

type RespCancelSubscription struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    CancelSubscriptionResponse `json:"data"`
}

type RespAccessDecision struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    access.Decision          `json:"data"`
}

type RespModuleDecisions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []access.ModuleDecision  `json:"data"`
}

type RespRenewalRun struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    renewal.RunResult        `json:"data"`
}

type RespBillingStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}
