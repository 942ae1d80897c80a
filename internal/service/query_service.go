package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/drivesense-api/internal/dto"
	"github.com/noah-isme/drivesense-api/internal/models"
	"github.com/noah-isme/drivesense-api/internal/repository"
)

// QueryService is the read side over detection records. Every query is scoped
// to the owner.
type QueryService interface {
	History(ctx context.Context, ownerID uint, limit *int) ([]dto.HistoryItem, error)
	Detail(ctx context.Context, ownerID, detectionID uint) (dto.DetectionDetail, error)
	Alerts(ctx context.Context, ownerID uint, limit *int) ([]dto.HistoryItem, error)
	Summary(ctx context.Context, ownerID uint) (dto.DetectionSummaryResponse, error)
}

// QueryConfig holds paging and cache settings for queries.
type QueryConfig struct {
	DefaultLimit int
	MaxLimit     int
	AlertMinRisk models.RiskLevel
	CacheTTL     time.Duration
}

type queryService struct {
	repo         repository.DetectionRepository
	cache        *redis.Client
	ttl          time.Duration
	defaultLimit int
	maxLimit     int
	alertLevels  []models.RiskLevel
	logger       zerolog.Logger
}

// NewQueryService constructs the query service. cache may be nil.
func NewQueryService(repo repository.DetectionRepository, cache *redis.Client, cfg QueryConfig, logger zerolog.Logger) QueryService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.AlertMinRisk.Rank() < 0 {
		cfg.AlertMinRisk = models.RiskHigh
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	return &queryService{
		repo:         repo,
		cache:        cache,
		ttl:          cfg.CacheTTL,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		alertLevels:  models.AtLeast(cfg.AlertMinRisk),
		logger:       logger.With().Str("component", "query_service").Logger(),
	}
}

func (s *queryService) History(ctx context.Context, ownerID uint, limit *int) ([]dto.HistoryItem, error) {
	resolved, err := s.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListByOwner(ctx, ownerID, resolved)
	if err != nil {
		return nil, err
	}

	return dto.NewHistoryItemSlice(records), nil
}

// Detail returns ErrDetectionNotFound both for unknown ids and for records
// owned by someone else.
func (s *queryService) Detail(ctx context.Context, ownerID, detectionID uint) (dto.DetectionDetail, error) {
	if detectionID == 0 {
		return dto.DetectionDetail{}, ErrDetectionNotFound
	}

	if detail, ok := s.cachedDetail(ctx, detectionID); ok {
		if detail.UserID != ownerID {
			return dto.DetectionDetail{}, ErrDetectionNotFound
		}
		return detail, nil
	}

	record, err := s.repo.GetByID(ctx, detectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DetectionDetail{}, ErrDetectionNotFound
		}
		return dto.DetectionDetail{}, err
	}

	if record.UserID != ownerID {
		return dto.DetectionDetail{}, ErrDetectionNotFound
	}

	detail := dto.NewDetectionDetail(record)
	if detail.Analysis != nil {
		s.storeDetail(ctx, detail)
	}

	return detail, nil
}

func (s *queryService) Alerts(ctx context.Context, ownerID uint, limit *int) ([]dto.HistoryItem, error) {
	resolved, err := s.resolveLimit(limit)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListByRisk(ctx, ownerID, s.alertLevels, resolved)
	if err != nil {
		return nil, err
	}

	return dto.NewHistoryItemSlice(records), nil
}

func (s *queryService) Summary(ctx context.Context, ownerID uint) (dto.DetectionSummaryResponse, error) {
	summary, err := s.repo.Summary(ctx, ownerID)
	if err != nil {
		return dto.DetectionSummaryResponse{}, err
	}

	byRisk := make(map[string]int64, len(models.RiskLevels()))
	for _, level := range models.RiskLevels() {
		byRisk[string(level)] = summary.ByRiskLevel[level]
	}

	unanalyzed := summary.Total - summary.Analyzed - summary.Deferred
	if unanalyzed < 0 {
		unanalyzed = 0
	}

	return dto.DetectionSummaryResponse{
		Total:       summary.Total,
		Analyzed:    summary.Analyzed,
		Unanalyzed:  unanalyzed,
		Deferred:    summary.Deferred,
		ByRiskLevel: byRisk,
	}, nil
}

// resolveLimit applies the default when absent, rejects negatives and clamps to the maximum.
func (s *queryService) resolveLimit(limit *int) (int, error) {
	if limit == nil {
		return s.defaultLimit, nil
	}
	if *limit < 0 {
		return 0, ErrInvalidLimit
	}
	if *limit > s.maxLimit {
		return s.maxLimit, nil
	}
	return *limit, nil
}

func detailCacheKey(id uint) string {
	return fmt.Sprintf("detections:detail:v1:%d", id)
}

func (s *queryService) cachedDetail(ctx context.Context, id uint) (dto.DetectionDetail, bool) {
	if s.cache == nil {
		return dto.DetectionDetail{}, false
	}

	cached, err := s.cache.Get(ctx, detailCacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Uint("detection_id", id).Msg("failed to read detail cache")
		}
		return dto.DetectionDetail{}, false
	}

	var detail dto.DetectionDetail
	if err := json.Unmarshal([]byte(cached), &detail); err != nil {
		s.logger.Warn().Err(err).Uint("detection_id", id).Msg("discarding malformed cached detail")
		return dto.DetectionDetail{}, false
	}

	return detail, true
}

// storeDetail caches completed details only; their content no longer changes.
func (s *queryService) storeDetail(ctx context.Context, detail dto.DetectionDetail) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, detailCacheKey(detail.ID), payload, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("detection_id", detail.ID).Msg("failed to cache detail")
	}
}
