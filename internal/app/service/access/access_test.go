package access

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/app/service/catalog"
	"github.com/retgrow/billing/internal/app/service/subscription"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/internal/platform/db/dbtest"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/types"
)

func TestAccessTable(t *testing.T) {
	paid := &catalog.CourseInfo{ID: "c1", Price: decimal.NewFromInt(5000)}
	free := &catalog.CourseInfo{ID: "c2", Price: decimal.Zero}
	locked := &catalog.ModuleInfo{ID: "m1", IsFree: false}
	open := &catalog.ModuleInfo{ID: "m2", IsFree: true}

	cases := []struct {
		name    string
		plan    types.Plan
		course  *catalog.CourseInfo
		module  *catalog.ModuleInfo
		inTrack bool
		want    bool
	}{
		{"pro always", types.PlanPro, paid, locked, false, true},
		{"free on free course", types.PlanFree, free, locked, false, true},
		{"free on free module", types.PlanFree, paid, open, false, true},
		{"free on paid module", types.PlanFree, paid, locked, false, false},
		{"free in track still denied", types.PlanFree, paid, locked, true, false},
		{"focused in track", types.PlanFocused, paid, locked, true, true},
		{"focused outside track", types.PlanFocused, paid, locked, false, false},
		{"focused on free module", types.PlanFocused, paid, open, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CanAccessModule(tc.plan, tc.course, tc.module, tc.inTrack))
		})
	}

	require.True(t, CanEnroll(types.PlanPro, paid, false))
	require.True(t, CanEnroll(types.PlanFree, free, false))
	require.True(t, CanEnroll(types.PlanFocused, paid, true))
	require.False(t, CanEnroll(types.PlanFocused, paid, false))
	require.True(t, CanEnroll(types.PlanFree, paid, true))
	require.False(t, CanEnroll(types.PlanFree, paid, false))
}

func newService(t *testing.T) (*Service, *gorm.DB, *subscription.Service) {
	t.Helper()
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{}
	cfg.Catalog.CacheSize = 8
	cfg.Catalog.CacheTTL = time.Minute
	store := catalog.NewStore(gdb, log, cfg)
	subs := subscription.NewService(gdb, log)

	require.NoError(t, gdb.Create(&models.Course{ID: "c1", Title: "Go", Price: decimal.NewFromInt(5000)}).Error)
	require.NoError(t, gdb.Create(&[]models.Module{
		{ID: "m1", CourseID: "c1", Order: 1, IsFree: true},
		{ID: "m2", CourseID: "c1", Order: 2},
	}).Error)
	require.NoError(t, gdb.Create(&models.TrackCourse{TrackID: "t1", CourseID: "c1"}).Error)
	return NewService(subs, store, store, log), gdb, subs
}

func grant(t *testing.T, gdb *gorm.DB, subs *subscription.Service, userID string, plan types.Plan) {
	t.Helper()
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		_, err := subs.Activate(context.Background(), tx, &subscription.ActivateRequest{
			UserID: userID, Plan: plan, Cycle: types.BillingCycleMonthly, Provider: types.PaymentProviderPaystack,
		})
		return err
	}))
}

func TestCheckModuleAccess(t *testing.T) {
	svc, gdb, subs := newService(t)
	ctx := context.Background()

	d, err := svc.CheckModuleAccess(ctx, "u1", "c1", "m2", nil)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, types.PlanFree, d.Plan)
	require.Equal(t, ReasonUpgradeRequired, d.Reason)

	d, err = svc.CheckModuleAccess(ctx, "u1", "c1", "m1", nil)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, ReasonFreeModule, d.Reason)

	grant(t, gdb, subs, "u1", types.PlanFocused)
	d, err = svc.CheckModuleAccess(ctx, "u1", "c1", "m2", nil)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, gdb.Create(&models.LearningPath{ID: "lp1", UserID: "u1", TrackID: "t1"}).Error)
	d, err = svc.CheckModuleAccess(ctx, "u1", "c1", "m2", nil)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, ReasonLearningPath, d.Reason)

	pro := types.PlanPro
	d, err = svc.CheckModuleAccess(ctx, "someone", "c1", "m2", &pro)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, ReasonProPlan, d.Reason)

	_, err = svc.CheckModuleAccess(ctx, "u1", "c1", "nope", nil)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCheckEnrollmentEligibility(t *testing.T) {
	svc, gdb, subs := newService(t)
	ctx := context.Background()

	d, err := svc.CheckEnrollmentEligibility(ctx, "u1", "c1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonUpgradeRequired, d.Reason)

	// a FREE user may enroll in a priced course of their track
	require.NoError(t, gdb.Create(&models.LearningPath{ID: "lp1", UserID: "u2", TrackID: "t1"}).Error)
	d, err = svc.CheckEnrollmentEligibility(ctx, "u2", "c1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, types.PlanFree, d.Plan)
	require.Equal(t, ReasonLearningPath, d.Reason)

	grant(t, gdb, subs, "u1", types.PlanPro)
	d, err = svc.CheckEnrollmentEligibility(ctx, "u1", "c1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	_, err = svc.CheckEnrollmentEligibility(ctx, "u1", "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCourseModuleAccess(t *testing.T) {
	svc, _, _ := newService(t)

	got, err := svc.CourseModuleAccess(context.Background(), "u1", "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].ModuleID)
	require.True(t, got[0].Allowed)
	require.Equal(t, "m2", got[1].ModuleID)
	require.False(t, got[1].Allowed)
}
