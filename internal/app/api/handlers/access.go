package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/retgrow/billing/internal/app/api/middleware"
	"github.com/retgrow/billing/internal/app/service/access"
	"github.com/retgrow/billing/pkg/response"
	"github.com/retgrow/billing/pkg/types"
)

type AccessChecker interface {
	CheckModuleAccess(ctx context.Context, userID, courseID, moduleID string, plan *types.Plan) (*access.Decision, error)
	CheckEnrollmentEligibility(ctx context.Context, userID, courseID string) (*access.Decision, error)
	CourseModuleAccess(ctx context.Context, userID, courseID string) ([]*access.ModuleDecision, error)
}

// @Summary      Module Access
// @Description  Reports whether the caller's plan unlocks a module.
// @Tags         Access
// @Produce      json
// @Security     BearerAuth
// @Param        course_id path string true "Course ID"
// @Param        module_id path string true "Module ID"
// @Success      200  {object}  handlers.RespAccessDecision
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/access/courses/{course_id}/modules/{module_id} [get]
func ApiModuleAccess(svc AccessChecker, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.CheckModuleAccess(c.Request.Context(), mw.UserID(c), c.Param("course_id"), c.Param("module_id"), nil)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(d))
	}
}

// @Summary      Course Module Access
// @Description  Evaluates every module of a course against the caller's plan.
// @Tags         Access
// @Produce      json
// @Security     BearerAuth
// @Param        course_id path string true "Course ID"
// @Success      200  {object}  handlers.RespModuleDecisions
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/access/courses/{course_id}/modules [get]
func ApiCourseModuleAccess(svc AccessChecker, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := svc.CourseModuleAccess(c.Request.Context(), mw.UserID(c), c.Param("course_id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Enrollment Eligibility
// @Description  Reports whether the caller's plan allows enrolling in a course.
// @Tags         Access
// @Produce      json
// @Security     BearerAuth
// @Param        course_id path string true "Course ID"
// @Success      200  {object}  handlers.RespAccessDecision
// @Failure      404  {object}  handlers.RespOK
// @Router       /api/v1/access/courses/{course_id}/enrollment [get]
func ApiEnrollmentEligibility(svc AccessChecker, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.CheckEnrollmentEligibility(c.Request.Context(), mw.UserID(c), c.Param("course_id"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(d))
	}
}

func RegisterAccessRoutes(r gin.IRouter, svc AccessChecker, log *zap.SugaredLogger) {
	r.GET("/courses/:course_id/modules", ApiCourseModuleAccess(svc, log))
	r.GET("/courses/:course_id/modules/:module_id", ApiModuleAccess(svc, log))
	r.GET("/courses/:course_id/enrollment", ApiEnrollmentEligibility(svc, log))
}
