package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/drivesense-api/internal/models"
)

// ErrResultAlreadyAttached indicates the detection already carries an analysis result.
var ErrResultAlreadyAttached = errors.New("analysis result already attached")

// DetectionSummary aggregates an owner's detections.
type DetectionSummary struct {
	Total       int64
	Analyzed    int64
	Deferred    int64
	ByRiskLevel map[models.RiskLevel]int64
}

// DetectionRepository stores detection records and their analysis results.
type DetectionRepository interface {
	Create(ctx context.Context, record *models.DetectionRecord) error
	AttachResult(ctx context.Context, result *models.AnalysisResult) error
	GetByID(ctx context.Context, id uint) (models.DetectionRecord, error)
	ListByOwner(ctx context.Context, ownerID uint, limit int) ([]models.DetectionRecord, error)
	ListByRisk(ctx context.Context, ownerID uint, levels []models.RiskLevel, limit int) ([]models.DetectionRecord, error)
	Summary(ctx context.Context, ownerID uint) (DetectionSummary, error)
}

type detectionRepository struct {
	db *gorm.DB
}

// NewDetectionRepository instantiates the repository.
func NewDetectionRepository(db *gorm.DB) DetectionRepository {
	return &detectionRepository{db: db}
}

func (r *detectionRepository) Create(ctx context.Context, record *models.DetectionRecord) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(record).Error
}

// AttachResult inserts the single analysis row for a detection. The unique index
// on detection_id backs the existence check when two writers race.
func (r *detectionRepository) AttachResult(ctx context.Context, result *models.AnalysisResult) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.DetectionRecord
		if err := tx.Select("id").First(&record, result.DetectionID).Error; err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.AnalysisResult{}).
			Where("detection_id = ?", result.DetectionID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrResultAlreadyAttached
		}

		return tx.Create(result).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrResultAlreadyAttached
	}

	return err
}

func (r *detectionRepository) GetByID(ctx context.Context, id uint) (models.DetectionRecord, error) {
	var record models.DetectionRecord
	if err := r.db.WithContext(ctx).Preload("Analysis").First(&record, id).Error; err != nil {
		return models.DetectionRecord{}, err
	}

	return record, nil
}

func (r *detectionRepository) ListByOwner(ctx context.Context, ownerID uint, limit int) ([]models.DetectionRecord, error) {
	if limit <= 0 {
		return []models.DetectionRecord{}, nil
	}

	var records []models.DetectionRecord
	if err := r.db.WithContext(ctx).
		Preload("Analysis").
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *detectionRepository) ListByRisk(ctx context.Context, ownerID uint, levels []models.RiskLevel, limit int) ([]models.DetectionRecord, error) {
	if limit <= 0 || len(levels) == 0 {
		return []models.DetectionRecord{}, nil
	}

	var records []models.DetectionRecord
	if err := r.db.WithContext(ctx).
		Select("detection_records.*").
		Preload("Analysis").
		Joins("JOIN analysis_results ON analysis_results.detection_id = detection_records.id").
		Where("detection_records.user_id = ?", ownerID).
		Where("analysis_results.risk_level IN ?", levels).
		Order("detection_records.created_at DESC").
		Order("detection_records.id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r *detectionRepository) Summary(ctx context.Context, ownerID uint) (DetectionSummary, error) {
	summary := DetectionSummary{ByRiskLevel: make(map[models.RiskLevel]int64)}

	base := r.db.WithContext(ctx).Model(&models.DetectionRecord{}).Where("user_id = ?", ownerID)
	if err := base.Session(&gorm.Session{}).Count(&summary.Total).Error; err != nil {
		return DetectionSummary{}, err
	}

	if err := base.Session(&gorm.Session{}).
		Where("detection_type = ?", models.DetectionKindVideo).
		Where("NOT EXISTS (SELECT 1 FROM analysis_results WHERE analysis_results.detection_id = detection_records.id)").
		Count(&summary.Deferred).Error; err != nil {
		return DetectionSummary{}, err
	}

	var rows []struct {
		RiskLevel models.RiskLevel
		Total     int64
	}
	if err := r.db.WithContext(ctx).
		Table("analysis_results").
		Select("analysis_results.risk_level AS risk_level, COUNT(*) AS total").
		Joins("JOIN detection_records ON detection_records.id = analysis_results.detection_id").
		Where("detection_records.user_id = ?", ownerID).
		Group("analysis_results.risk_level").
		Scan(&rows).Error; err != nil {
		return DetectionSummary{}, err
	}

	for _, row := range rows {
		summary.ByRiskLevel[row.RiskLevel] = row.Total
		summary.Analyzed += row.Total
	}

	return summary, nil
}
