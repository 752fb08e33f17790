package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/internal/platform/db/dbtest"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/config"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	gdb := dbtest.New(t)
	cfg := &config.Config{}
	cfg.Catalog.CacheSize = 16
	cfg.Catalog.CacheTTL = time.Minute
	return NewStore(gdb, zap.NewNop().Sugar(), cfg)
}

func TestStore_GetUser(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.db.Create(&models.User{ID: "u1", Username: "ada", Email: "ada@x.io", FirstName: "Ada", LastName: "Lovelace"}).Error)

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "ada@x.io", u.Email)
	require.Equal(t, "Ada Lovelace", u.Name)

	// served from cache after the row is gone
	require.NoError(t, s.db.Delete(&models.User{}, "id = ?", "u1").Error)
	u, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "ada@x.io", u.Email)

	_, err = s.GetUser(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDisplayName_Fallbacks(t *testing.T) {
	require.Equal(t, "ada", displayName(&models.User{Username: "ada", Email: "a@x"}))
	require.Equal(t, "a@x", displayName(&models.User{Email: "a@x"}))
}

func TestStore_CourseAndModules(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.db.Create(&models.Course{ID: "c1", Title: "Go", Price: decimal.NewFromInt(5000)}).Error)
	require.NoError(t, s.db.Create(&models.Module{ID: "m2", CourseID: "c1", Order: 2}).Error)
	require.NoError(t, s.db.Create(&models.Module{ID: "m1", CourseID: "c1", Order: 1, IsFree: true}).Error)

	c, err := s.GetCourse(ctx, "c1")
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(5000).Equal(c.Price))

	m, err := s.GetModule(ctx, "c1", "m1")
	require.NoError(t, err)
	require.True(t, m.IsFree)

	_, err = s.GetModule(ctx, "other", "m1")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := s.ListModules(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "m1", list[0].ID)
}

func TestStore_IsCourseInUserTrack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.db.Create(&models.LearningPath{ID: "lp1", UserID: "u1", TrackID: "t1"}).Error)
	require.NoError(t, s.db.Create(&models.TrackCourse{TrackID: "t1", CourseID: "c1"}).Error)

	in, err := s.IsCourseInUserTrack(ctx, "u1", "c1")
	require.NoError(t, err)
	require.True(t, in)

	in, err = s.IsCourseInUserTrack(ctx, "u1", "c2")
	require.NoError(t, err)
	require.False(t, in)

	in, err = s.IsCourseInUserTrack(ctx, "u2", "c1")
	require.NoError(t, err)
	require.False(t, in)
}
