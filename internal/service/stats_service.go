package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/edulink-app/assignment-api/internal/models"
	appErrors "github.com/edulink-app/assignment-api/pkg/errors"
)

type statsRepository interface {
	GetStudentStats(ctx context.Context, studentID string) (*models.StudentStats, error)
	GetClassStats(ctx context.Context, classID string) (*models.ClassStats, error)
	GetSchoolStats(ctx context.Context) (*models.SchoolStats, error)
	ListClassAssignmentStats(ctx context.Context, classID string) ([]models.ClassAssignmentStats, error)
}

type statsAssignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type statsProgressRepository interface {
	StatusesFor(ctx context.Context, assignmentID string) ([]models.StudentAssignmentStatus, error)
}

type statsClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// StudentStatsView pairs the rollup row with its derived accuracy.
type StudentStatsView struct {
	models.StudentStats
	AccuracyRate float64 `json:"accuracy"`
}

// StatsService serves aggregate reads, backed by the rollup tables and cached
// in redis. Counters are maintained by the submission transaction; this
// service never recomputes them.
type StatsService struct {
	stats       statsRepository
	assignments statsAssignmentRepository
	progress    statsProgressRepository
	classes     statsClassRepository
	cache       *CacheService
	metrics     *MetricsService
	ttl         time.Duration
	logger      *zap.Logger
}

// NewStatsService constructs a StatsService.
func NewStatsService(stats statsRepository, assignments statsAssignmentRepository, progress statsProgressRepository, classes statsClassRepository, cache *CacheService, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatsService{
		stats:       stats,
		assignments: assignments,
		progress:    progress,
		classes:     classes,
		cache:       cache,
		metrics:     metrics,
		ttl:         ttl,
		logger:      logger,
	}
}

// AssignmentStats returns the assignment counters plus per-student standing.
func (s *StatsService) AssignmentStats(ctx context.Context, actor Actor, assignmentID string) (*models.AssignmentStatsView, bool, error) {
	key := "stats:assignment:" + assignmentID
	var cached models.AssignmentStatsView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if actor.Role == models.RoleTeacher && assignment.CreatedBy != actor.UserID {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another teacher")
	}

	start := time.Now()
	students, err := s.progress.StatusesFor(ctx, assignmentID)
	s.metrics.ObserveDBQuery("assignment_statuses", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student statuses")
	}

	view := &models.AssignmentStatsView{
		AssignmentID:            assignment.ID,
		Topic:                   assignment.Topic,
		TotalStudentsInScope:    assignment.TotalStudentsInScope,
		CompletedStudentsCount:  assignment.CompletedStudentsCount,
		CompletionRate:          assignment.CompletionRate,
		AverageScoreOfCompleted: assignment.AverageScoreOfCompleted,
		Students:                students,
	}

	if err := s.cache.Set(ctx, key, view, s.ttl); err != nil {
		s.logger.Warn("failed to cache assignment stats", zap.Error(err))
	}
	return view, false, nil
}

// StudentStats returns the per-student rollup. Students may only read their own.
func (s *StatsService) StudentStats(ctx context.Context, actor Actor, studentID string) (*StudentStatsView, bool, error) {
	if actor.Role == models.RoleStudent && actor.UserID != studentID {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own statistics")
	}

	key := "stats:student:" + studentID
	var cached StudentStatsView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	start := time.Now()
	stats, err := s.stats.GetStudentStats(ctx, studentID)
	s.metrics.ObserveDBQuery("student_stats", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student stats")
	}

	view := &StudentStatsView{StudentStats: *stats, AccuracyRate: stats.Accuracy()}
	if err := s.cache.Set(ctx, key, view, s.ttl); err != nil {
		s.logger.Warn("failed to cache student stats", zap.Error(err))
	}
	return view, false, nil
}

// ClassStats returns the class rollup plus per-assignment completion.
func (s *StatsService) ClassStats(ctx context.Context, classID string) (*models.ClassStatsView, bool, error) {
	key := "stats:class:" + classID
	var cached models.ClassStatsView
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	start := time.Now()
	stats, err := s.stats.GetClassStats(ctx, classID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class stats")
	}
	assignmentRows, err := s.stats.ListClassAssignmentStats(ctx, classID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class assignment stats")
	}
	s.metrics.ObserveDBQuery("class_stats", time.Since(start))

	view := &models.ClassStatsView{
		ClassID:     classID,
		ClassName:   class.Name,
		Stats:       *stats,
		Assignments: assignmentRows,
	}
	if err := s.cache.Set(ctx, key, view, s.ttl); err != nil {
		s.logger.Warn("failed to cache class stats", zap.Error(err))
	}
	return view, false, nil
}

// SchoolStats returns the single school-wide rollup.
func (s *StatsService) SchoolStats(ctx context.Context) (*models.SchoolStats, bool, error) {
	const key = "stats:school"
	var cached models.SchoolStats
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	start := time.Now()
	stats, err := s.stats.GetSchoolStats(ctx)
	s.metrics.ObserveDBQuery("school_stats", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school stats")
	}

	if err := s.cache.Set(ctx, key, stats, s.ttl); err != nil {
		s.logger.Warn("failed to cache school stats", zap.Error(err))
	}
	return stats, false, nil
}
