package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	mw "github.com/retgrow/billing/internal/app/api/middleware"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/response"
	"github.com/retgrow/billing/pkg/types"
)

type InitializePaymentRequest struct {
	Plan         string `json:"plan" binding:"required" example:"PRO"`
	BillingCycle string `json:"billing_cycle" binding:"required" example:"MONTHLY"`
	Provider     string `json:"provider" binding:"required" example:"PAYSTACK"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

// TransactionItem is the client view of a ledger row. Provider tokens and raw metadata
// stay server side.
type TransactionItem struct {
	ID             string                  `json:"id"`
	Reference      string                  `json:"reference"`
	SubscriptionID *string                 `json:"subscription_id"`
	Kind           types.TransactionKind   `json:"kind"`
	Status         types.TransactionStatus `json:"status"`
	Provider       types.PaymentProvider   `json:"provider"`
	Plan           types.Plan              `json:"plan"`
	BillingCycle   types.BillingCycle      `json:"billing_cycle"`
	Amount         decimal.Decimal         `json:"amount"`
	Currency       string                  `json:"currency"`
	FailureReason  *string                 `json:"failure_reason"`
	CreatedAt      time.Time               `json:"created_at"`
	CompletedAt    *time.Time              `json:"completed_at"`
}

func toTransactionItem(m *models.Transaction) *TransactionItem {
	return &TransactionItem{
		ID:             m.ID,
		Reference:      m.Reference,
		SubscriptionID: m.SubscriptionID,
		Kind:           m.Kind,
		Status:         m.Status,
		Provider:       m.Provider,
		Plan:           m.Plan,
		BillingCycle:   m.BillingCycle,
		Amount:         m.Amount,
		Currency:       m.Currency,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		CompletedAt:    m.CompletedAt,
	}
}

type ListTransactionsResponse struct {
	Items []*TransactionItem `json:"items"`
	Total int64              `json:"total"`
}

// @Summary      Initialize Payment
// @Description  Creates a pending purchase and returns the provider checkout URL.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body InitializePaymentRequest true "Plan, billing cycle and provider"
// @Success      200  {object}  handlers.RespInitializePayment
// @Failure      400  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Failure      502  {object}  handlers.RespOK
// @Router       /api/v1/payments/initialize [post]
func ApiInitializePayment(mgr transaction.TransactionManager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitializePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		plan, ok := types.ParsePlan(req.Plan)
		if !ok {
			badRequest(c, "invalid plan: "+req.Plan)
			return
		}
		cycle, ok := types.ParseBillingCycle(req.BillingCycle)
		if !ok {
			badRequest(c, "invalid billing_cycle: "+req.BillingCycle)
			return
		}
		provider, ok := types.ParsePaymentProvider(req.Provider)
		if !ok {
			badRequest(c, "unsupported payment provider: "+req.Provider)
			return
		}

		res, err := mgr.InitializePayment(c.Request.Context(), &transaction.InitializeRequest{
			UserID:       mw.UserID(c),
			Plan:         plan,
			BillingCycle: cycle,
			Provider:     provider,
			CallbackURL:  req.CallbackURL,
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Verify Payment
// @Description  Settles the caller's payment against the provider. Safe to poll; status PENDING means try again later.
// @Tags         Payment
// @Produce      json
// @Security     BearerAuth
// @Param        reference path string true "Payment reference"
// @Success      200  {object}  handlers.RespVerifyPayment
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/payments/verify/{reference} [get]
func ApiVerifyPayment(mgr transaction.TransactionManager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reference := c.Param("reference")
		if _, err := mgr.GetTransaction(c.Request.Context(), mw.UserID(c), reference); err != nil {
			writeError(c, log, err)
			return
		}
		res, err := mgr.VerifyAndActivate(c.Request.Context(), reference)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Payment History
// @Description  Lists the caller's payment transactions, newest first.
// @Tags         Payment
// @Produce      json
// @Security     BearerAuth
// @Param        from query int false "Offset"
// @Param        size query int false "Page size (max 100)"
// @Success      200  {object}  handlers.RespListTransactions
// @Router       /api/v1/payments/history [get]
func ApiPaymentHistory(mgr transaction.TransactionManager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		from := 0
		if v := c.Query("from"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				from = n
			}
		}
		size := 20
		if v := c.Query("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 100 {
				badRequest(c, "invalid size")
				return
			}
			size = n
		}

		res, err := mgr.ListUserTransactions(c.Request.Context(), mw.UserID(c), from, size)
		if err != nil {
			writeError(c, log, err)
			return
		}
		items := lo.Map(res.Items, func(it *models.Transaction, _ int) *TransactionItem { return toTransactionItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListTransactionsResponse{Items: items, Total: res.Total}))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, mgr transaction.TransactionManager, log *zap.SugaredLogger) {
	r.POST("/initialize", ApiInitializePayment(mgr, log))
	r.GET("/verify/:reference", ApiVerifyPayment(mgr, log))
	r.GET("/history", ApiPaymentHistory(mgr, log))
}
