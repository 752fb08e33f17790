package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/retgrow/billing/internal/app/service/renewal"
	"github.com/retgrow/billing/pkg/response"
)

type RenewalRunner interface {
	Run(ctx context.Context) (*renewal.RunResult, error)
}

// @Summary      Renew Subscriptions
// @Description  Charges every due auto-renewing subscription. Requires the X-Cron-Secret header.
// @Tags         Cron
// @Produce      json
// @Param        X-Cron-Secret header string true "Shared cron secret"
// @Success      200  {object}  handlers.RespRenewalRun
// @Failure      403  {object}  handlers.RespOK
// @Failure      503  {object}  handlers.RespOK
// @Router       /api/v1/cron/renew-subscriptions [post]
func ApiRenewSubscriptions(runner RenewalRunner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := runner.Run(c.Request.Context())
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterCronRoutes(r gin.IRouter, runner RenewalRunner, log *zap.SugaredLogger) {
	r.POST("/renew-subscriptions", ApiRenewSubscriptions(runner, log))
}
