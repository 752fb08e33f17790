// Package access decides what a plan unlocks. It only reads subscription state.
package access

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/retgrow/billing/internal/app/service/catalog"
	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/types"
)

type Reason string

const (
	ReasonProPlan         Reason = "pro_plan"
	ReasonFreeCourse      Reason = "free_course"
	ReasonFreeModule      Reason = "free_module"
	ReasonLearningPath    Reason = "learning_path"
	ReasonUpgradeRequired Reason = "upgrade_required"
)

type Decision struct {
	Allowed bool       `json:"allowed"`
	Plan    types.Plan `json:"plan"`
	Reason  Reason     `json:"reason"`
}

type ModuleDecision struct {
	ModuleID string `json:"module_id"`
	Decision
}

// decide evaluates the access table. inTrack is only consulted for FOCUSED.
func decide(plan types.Plan, course *catalog.CourseInfo, module *catalog.ModuleInfo, inTrack func() bool) Reason {
	switch {
	case plan == types.PlanPro:
		return ReasonProPlan
	case course != nil && course.Price.IsZero():
		return ReasonFreeCourse
	case module != nil && module.IsFree:
		return ReasonFreeModule
	case plan == types.PlanFocused && inTrack():
		return ReasonLearningPath
	}
	return ReasonUpgradeRequired
}

// decideEnrollment opens a priced course in the user's track to every plan; only module
// access limits that rule to FOCUSED.
func decideEnrollment(plan types.Plan, course *catalog.CourseInfo, inTrack func() bool) Reason {
	switch {
	case plan == types.PlanPro:
		return ReasonProPlan
	case course != nil && course.Price.IsZero():
		return ReasonFreeCourse
	case inTrack():
		return ReasonLearningPath
	}
	return ReasonUpgradeRequired
}

// CanAccessModule reports whether plan unlocks module of course.
func CanAccessModule(plan types.Plan, course *catalog.CourseInfo, module *catalog.ModuleInfo, inTrack bool) bool {
	return decide(plan, course, module, func() bool { return inTrack }) != ReasonUpgradeRequired
}

// CanEnroll reports whether plan may enroll in course.
func CanEnroll(plan types.Plan, course *catalog.CourseInfo, inTrack bool) bool {
	return decideEnrollment(plan, course, func() bool { return inTrack }) != ReasonUpgradeRequired
}

type Service struct {
	subSvc  *subscription.Service
	courses catalog.CourseCatalog
	paths   catalog.LearningPaths
	log     *zap.SugaredLogger
}

func NewService(sub *subscription.Service, courses catalog.CourseCatalog, paths catalog.LearningPaths, log *zap.SugaredLogger) *Service {
	return &Service{subSvc: sub, courses: courses, paths: paths, log: log}
}

func (s *Service) resolvePlan(ctx context.Context, userID string, plan *types.Plan) (types.Plan, error) {
	if plan != nil {
		return *plan, nil
	}
	return s.subSvc.ResolvePlan(ctx, userID)
}

// trackLookup defers the learning-path query until the table needs it and treats a
// lookup failure as "not in track".
func (s *Service) trackLookup(ctx context.Context, userID, courseID string) func() bool {
	var (
		done   bool
		result bool
	)
	return func() bool {
		if done {
			return result
		}
		done = true
		ok, err := s.paths.IsCourseInUserTrack(ctx, userID, courseID)
		if err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("learning_path_lookup_failed", "course_id", courseID, "error", err)
			return false
		}
		result = ok
		return result
	}
}

// CheckModuleAccess evaluates one module. plan may be passed when the caller already
// resolved it.
func (s *Service) CheckModuleAccess(ctx context.Context, userID, courseID, moduleID string, plan *types.Plan) (*Decision, error) {
	p, err := s.resolvePlan(ctx, userID, plan)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	module, err := s.courses.GetModule(ctx, courseID, moduleID)
	if err != nil {
		return nil, err
	}
	reason := decide(p, course, module, s.trackLookup(ctx, userID, courseID))
	return &Decision{Allowed: reason != ReasonUpgradeRequired, Plan: p, Reason: reason}, nil
}

func (s *Service) CheckEnrollmentEligibility(ctx context.Context, userID, courseID string) (*Decision, error) {
	p, err := s.subSvc.ResolvePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	reason := decideEnrollment(p, course, s.trackLookup(ctx, userID, courseID))
	return &Decision{Allowed: reason != ReasonUpgradeRequired, Plan: p, Reason: reason}, nil
}

// CourseModuleAccess evaluates every module of a course against a single plan resolution.
func (s *Service) CourseModuleAccess(ctx context.Context, userID, courseID string) ([]*ModuleDecision, error) {
	p, err := s.subSvc.ResolvePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	modules, err := s.courses.ListModules(ctx, courseID)
	if err != nil {
		return nil, err
	}
	inTrack := s.trackLookup(ctx, userID, courseID)
	out := make([]*ModuleDecision, 0, len(modules))
	for _, m := range modules {
		reason := decide(p, course, m, inTrack)
		out = append(out, &ModuleDecision{
			ModuleID: m.ID,
			Decision: Decision{Allowed: reason != ReasonUpgradeRequired, Plan: p, Reason: reason},
		})
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
