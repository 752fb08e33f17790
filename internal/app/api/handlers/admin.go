package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/retgrow/billing/internal/app/service/statistics"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/response"
	"github.com/retgrow/billing/pkg/types"
)

type ListTransactionRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// AdminTransactionItem adds the owner to the client view.
type AdminTransactionItem struct {
	UserID string `json:"user_id"`
	*TransactionItem
	ExternalReference *string `json:"external_reference"`
}

type ListAdminTransactionsResponse struct {
	Items []*AdminTransactionItem `json:"items"`
	Total int64                   `json:"total"`
}

// @Summary      List Transactions (Admin)
// @Description  Retrieves a paginated and filterable list of all payment transactions.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ListTransactionRequest true "List transaction request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListAdminTransactions
// @Failure      400  {object}  handlers.RespOK
// @Router       /api/v1/admin/list_transactions [post]
func ApiListTransactions(mgr transaction.TransactionManager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		scanReq := &transaction.ScanTransactionsRequest{Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder}
		res, err := mgr.ScanTransactions(c.Request.Context(), scanReq)
		if err != nil {
			writeError(c, log, err)
			return
		}
		items := lo.Map(res.Items, func(it *models.Transaction, _ int) *AdminTransactionItem {
			return &AdminTransactionItem{UserID: it.UserID, TransactionItem: toTransactionItem(it), ExternalReference: it.ExternalReference}
		})
		c.JSON(http.StatusOK, response.OKT(&ListAdminTransactionsResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      Get Billing Statistics (Admin)
// @Description  Retrieves daily revenue, transaction and subscriber statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  handlers.RespBillingStatistic
// @Failure      400  {object}  handlers.RespOK
// @Router       /api/v1/admin/get_billing_statistic [post]
func ApiGetBillingStatistic(svc *statistics.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svc.GetBillingStatistic(c.Request.Context(), &req)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, mgr transaction.TransactionManager, stats *statistics.Service, log *zap.SugaredLogger) {
	r.POST("/list_transactions", ApiListTransactions(mgr, log))
	r.POST("/get_billing_statistic", ApiGetBillingStatistic(stats, log))
}
