package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	mw "github.com/retgrow/billing/internal/app/api/middleware"
	subsvc "github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/response"
	"github.com/retgrow/billing/pkg/types"
)

// SubscriptionService is the part of subscription.Service the HTTP layer needs.
type SubscriptionService interface {
	GetCurrent(ctx context.Context, userID string) (*models.Subscription, error)
	History(ctx context.Context, userID string) ([]*models.Subscription, error)
	Cancel(ctx context.Context, userID, reason string) (*subsvc.CancelResult, error)
}

type SubscriptionItem struct {
	ID              string                   `json:"id"`
	Plan            types.Plan               `json:"plan"`
	PlanName        string                   `json:"plan_name"`
	BillingCycle    *types.BillingCycle      `json:"billing_cycle"`
	Status          types.SubscriptionStatus `json:"status"`
	StartDate       time.Time                `json:"start_date"`
	EndDate         *time.Time               `json:"end_date"`
	AutoRenew       bool                     `json:"auto_renew"`
	PaymentProvider *types.PaymentProvider   `json:"payment_provider"`
	CancelledAt     *time.Time               `json:"cancelled_at"`
	CancelReason    *string                  `json:"cancel_reason"`
	CreatedAt       time.Time                `json:"created_at"`
}

func toSubscriptionItem(m *models.Subscription) *SubscriptionItem {
	return &SubscriptionItem{
		ID:              m.ID,
		Plan:            m.Plan,
		PlanName:        m.Plan.DisplayName(),
		BillingCycle:    m.BillingCycle,
		Status:          m.Status,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		AutoRenew:       m.AutoRenew,
		PaymentProvider: m.PaymentProvider,
		CancelledAt:     m.CancelledAt,
		CancelReason:    m.CancelReason,
		CreatedAt:       m.CreatedAt,
	}
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CancelSubscriptionResponse struct {
	Message      string            `json:"message"`
	EndDate      *time.Time        `json:"end_date"`
	Subscription *SubscriptionItem `json:"subscription"`
}

// @Summary      Current Subscription
// @Description  Returns the caller's effective subscription. A FREE subscription is created on first use.
// @Tags         Subscription
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/current [get]
func ApiCurrentSubscription(svc SubscriptionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.GetCurrent(c.Request.Context(), mw.UserID(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(toSubscriptionItem(sub)))
	}
}

// @Summary      Subscription History
// @Description  Lists every subscription row of the caller, newest first.
// @Tags         Subscription
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSubscriptionHistory
// @Router       /api/v1/subscriptions/history [get]
func ApiSubscriptionHistory(svc SubscriptionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := svc.History(c.Request.Context(), mw.UserID(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(lo.Map(rows, func(it *models.Subscription, _ int) *SubscriptionItem { return toSubscriptionItem(it) })))
	}
}

// @Summary      Cancel Subscription
// @Description  Stops auto-renew. Access continues until the end of the billing period.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CancelSubscriptionRequest false "Optional cancel reason"
// @Success      200  {object}  handlers.RespCancelSubscription
// @Failure      400  {object}  handlers.RespOK
// @Failure      404  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/cancel [post]
func ApiCancelSubscription(svc SubscriptionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelSubscriptionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		res, err := svc.Cancel(c.Request.Context(), mw.UserID(c), req.Reason)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&CancelSubscriptionResponse{
			Message:      res.Message,
			EndDate:      res.EndDate,
			Subscription: toSubscriptionItem(res.Subscription),
		}))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, svc SubscriptionService, log *zap.SugaredLogger) {
	r.GET("/current", ApiCurrentSubscription(svc, log))
	r.GET("/history", ApiSubscriptionHistory(svc, log))
	r.POST("/cancel", ApiCancelSubscription(svc, log))
}
