package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ndrozd/studentportal-api/pkg/config"
	appErrors "github.com/ndrozd/studentportal-api/pkg/errors"
)

type capacityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// CapacityEstimate is the advisory throughput for a teacher's day.
type CapacityEstimate struct {
	TeacherID            string `json:"teacher_id"`
	Date                 string `json:"date"`
	MaxStudents          int    `json:"max_students"`
	TotalMinutes         int    `json:"total_minutes"`
	AverageDefenseMinute int    `json:"average_defense_minutes"`
}

// CapacityService estimates how many students a teacher can see on a
// date. Read-only; malformed windows contribute nothing to the total.
type CapacityService struct {
	windows windowReader
	cache   capacityCache
	metrics cacheMetrics
	cfg     config.DefenseConfig
	logger  *zap.Logger
}

// NewCapacityService constructs CapacityService. cache and metrics
// may be nil, in which case every call recomputes.
func NewCapacityService(windows windowReader, cache capacityCache, metrics cacheMetrics, cfg config.DefenseConfig, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AverageDefenseMinutes <= 0 {
		cfg.AverageDefenseMinutes = 10
	}
	if cfg.CapacityCacheTTL <= 0 {
		cfg.CapacityCacheTTL = 5 * time.Minute
	}
	return &CapacityService{windows: windows, cache: cache, metrics: metrics, cfg: cfg, logger: logger}
}

// MaxStudents sums the teacher's window durations on the date and
// floor-divides by the average defense length. Zero when the teacher
// has no windows that day.
func (s *CapacityService) MaxStudents(ctx context.Context, teacherID string, date time.Time) (*CapacityEstimate, error) {
	key := fmt.Sprintf("capacity:%s:%s", teacherID, date.Format("2006-01-02"))
	if s.cache != nil {
		start := time.Now()
		var cached CapacityEstimate
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return &cached, nil
		}
		if err != appErrors.ErrCacheMiss {
			s.logger.Warn("capacity cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	windows, err := s.windows.ListByTeacherAndDate(ctx, teacherID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load windows")
	}

	total := 0
	for _, w := range windows {
		minutes, err := w.DurationMinutes()
		if err != nil {
			continue
		}
		total += minutes
	}

	estimate := &CapacityEstimate{
		TeacherID:            teacherID,
		Date:                 date.Format("2006-01-02"),
		MaxStudents:          total / s.cfg.AverageDefenseMinutes,
		TotalMinutes:         total,
		AverageDefenseMinute: s.cfg.AverageDefenseMinutes,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, estimate, s.cfg.CapacityCacheTTL); err != nil {
			s.logger.Warn("capacity cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return estimate, nil
}
