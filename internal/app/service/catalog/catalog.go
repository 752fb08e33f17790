// Package catalog reads identity, course and track data owned by other services.
// Nothing here writes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/config"
)

type UserInfo struct {
	ID    string
	Email string
	Name  string
}

type CourseInfo struct {
	ID    string
	Title string
	Price decimal.Decimal
}

type ModuleInfo struct {
	ID       string
	CourseID string
	IsFree   bool
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*UserInfo, error)
}

type CourseCatalog interface {
	GetCourse(ctx context.Context, courseID string) (*CourseInfo, error)
	GetModule(ctx context.Context, courseID, moduleID string) (*ModuleInfo, error)
	ListModules(ctx context.Context, courseID string) ([]*ModuleInfo, error)
}

type LearningPaths interface {
	// IsCourseInUserTrack reports whether courseID belongs to a track the user is enrolled in.
	IsCourseInUserTrack(ctx context.Context, userID, courseID string) (bool, error)
}

// Store implements all three collaborators over the shared database. Users and courses
// change rarely, so both go through an expiring LRU; track membership is always read live.
type Store struct {
	db      *gorm.DB
	log     *zap.SugaredLogger
	users   *lru.LRU[string, *UserInfo]
	courses *lru.LRU[string, *CourseInfo]
}

var (
	_ UserDirectory = (*Store)(nil)
	_ CourseCatalog = (*Store)(nil)
	_ LearningPaths = (*Store)(nil)
)

func NewStore(db *gorm.DB, log *zap.SugaredLogger, cfg *config.Config) *Store {
	size := cfg.Catalog.CacheSize
	if size <= 0 {
		size = 1024
	}
	return &Store{
		db:      db,
		log:     log,
		users:   lru.NewLRU[string, *UserInfo](size, nil, cfg.Catalog.CacheTTL),
		courses: lru.NewLRU[string, *CourseInfo](size, nil, cfg.Catalog.CacheTTL),
	}
}

func (s *Store) GetUser(ctx context.Context, userID string) (*UserInfo, error) {
	if u, ok := s.users.Get(userID); ok {
		return u, nil
	}
	var row models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	u := &UserInfo{ID: row.ID, Email: row.Email, Name: displayName(&row)}
	s.users.Add(userID, u)
	return u, nil
}

func (s *Store) GetCourse(ctx context.Context, courseID string) (*CourseInfo, error) {
	if c, ok := s.courses.Get(courseID); ok {
		return c, nil
	}
	var row models.Course
	if err := s.db.WithContext(ctx).Where("id = ?", courseID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Course not found")
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	c := &CourseInfo{ID: row.ID, Title: row.Title, Price: row.Price}
	s.courses.Add(courseID, c)
	return c, nil
}

func (s *Store) GetModule(ctx context.Context, courseID, moduleID string) (*ModuleInfo, error) {
	var row models.Module
	err := s.db.WithContext(ctx).Where("id = ? AND course_id = ?", moduleID, courseID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Module not found")
		}
		return nil, fmt.Errorf("load module: %w", err)
	}
	return toModuleInfo(&row), nil
}

func (s *Store) ListModules(ctx context.Context, courseID string) ([]*ModuleInfo, error) {
	var rows []models.Module
	if err := s.db.WithContext(ctx).Where("course_id = ?", courseID).Order(`"order" ASC`).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	out := make([]*ModuleInfo, 0, len(rows))
	for i := range rows {
		out = append(out, toModuleInfo(&rows[i]))
	}
	return out, nil
}

func (s *Store) IsCourseInUserTrack(ctx context.Context, userID, courseID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Table(models.TrackCourse{}.TableName()+" AS tc").
		Joins("JOIN "+models.LearningPath{}.TableName()+" AS lp ON lp.track_id = tc.track_id").
		Where("lp.user_id = ? AND tc.course_id = ?", userID, courseID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check track membership: %w", err)
	}
	return n > 0, nil
}

func toModuleInfo(m *models.Module) *ModuleInfo {
	return &ModuleInfo{ID: m.ID, CourseID: m.CourseID, IsFree: m.IsFree}
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

var Module = fx.Options(
	fx.Provide(NewStore),
	fx.Provide(
		func(s *Store) UserDirectory { return s },
		func(s *Store) CourseCatalog { return s },
		func(s *Store) LearningPaths { return s },
	),
)
