package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/response"
)

const messageInternal = "An unexpected error occurred"

func statusOf(err error) (int, response.APIResponseCode) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, response.APIResponseCodeBadRequest
	case apperr.KindSignature:
		return http.StatusUnauthorized, response.APIResponseCodeUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound, response.APIResponseCodeNotFound
	case apperr.KindConflict:
		return http.StatusConflict, response.APIResponseCodeConflict
	case apperr.KindProvider:
		return http.StatusBadGateway, response.APIResponseCodeProvider
	}
	return http.StatusInternalServerError, response.APIResponseCodeError
}

// writeError maps err onto the response envelope. Errors outside the apperr taxonomy are
// logged and reported with a generic message.
func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	status, code := statusOf(err)
	msg := apperr.MessageOf(err)
	if code == response.APIResponseCodeError {
		logctx.FromGin(c, log).Errorw("request_failed", "error", err)
		msg = messageInternal
	}
	c.JSON(status, response.MessageT[any](code, msg, nil))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.MessageT[any](response.APIResponseCodeBadRequest, msg, nil))
}
