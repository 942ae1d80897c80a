package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/drivesense-api/internal/models"
	"github.com/noah-isme/drivesense-api/internal/repository"
)

func intPtr(v int) *int {
	return &v
}

func insertDetection(t *testing.T, db *gorm.DB, ownerID uint, kind models.DetectionKind, createdAt time.Time, level models.RiskLevel) models.DetectionRecord {
	t.Helper()

	record := models.DetectionRecord{
		UserID:    ownerID,
		Kind:      kind,
		FilePath:  fmt.Sprintf("/uploads/%s-%d-%s", kind, ownerID, uuid.NewString()),
		FileName:  "frame",
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(&record).Error)

	if level != "" {
		result := models.AnalysisResult{
			DetectionID:  record.ID,
			Emotion:      "Neutral",
			DrivingState: "alert",
			RiskLevel:    level,
			RiskColor:    "green",
		}
		require.NoError(t, db.Create(&result).Error)
	}

	return record
}

func setupQueryService(t *testing.T, cache *redis.Client) (*gorm.DB, QueryService) {
	t.Helper()

	db := setupServiceDB(t, "queries")
	repo := repository.NewDetectionRepository(db)
	svc := NewQueryService(repo, cache, QueryConfig{DefaultLimit: 3, MaxLimit: 5, AlertMinRisk: models.RiskHigh, CacheTTL: time.Minute}, testLogger())

	return db, svc
}

func TestQueryServiceHistoryLimits(t *testing.T) {
	db, svc := setupQueryService(t, nil)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	base := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		insertDetection(t, db, alice.ID, models.DetectionKindImage, base.Add(time.Duration(i)*time.Minute), "")
	}
	insertDetection(t, db, bob.ID, models.DetectionKindImage, base.Add(time.Hour), models.RiskSafe)

	ctx := context.Background()

	items, err := svc.History(ctx, alice.ID, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i := 1; i < len(items); i++ {
		require.True(t, !items[i].CreatedAt.After(items[i-1].CreatedAt))
	}
	for _, item := range items {
		require.Equal(t, alice.ID, item.UserID)
		require.Nil(t, item.RiskLevel)
		require.Equal(t, models.DetectionStatusUnanalyzed, item.Status)
	}

	items, err = svc.History(ctx, alice.ID, intPtr(100))
	require.NoError(t, err)
	require.Len(t, items, 5)

	items, err = svc.History(ctx, alice.ID, intPtr(0))
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)

	_, err = svc.History(ctx, alice.ID, intPtr(-1))
	require.ErrorIs(t, err, ErrInvalidLimit)
}

func TestQueryServiceDetailOwnershipAndNotFound(t *testing.T) {
	db, svc := setupQueryService(t, nil)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	record := insertDetection(t, db, alice.ID, models.DetectionKindImage, time.Now(), models.RiskMedium)
	pending := insertDetection(t, db, alice.ID, models.DetectionKindImage, time.Now(), "")

	ctx := context.Background()

	detail, err := svc.Detail(ctx, alice.ID, record.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Analysis)
	require.Equal(t, "medium", detail.Analysis.RiskLevel)
	require.Equal(t, models.DetectionStatusCompleted, detail.Status)

	detail, err = svc.Detail(ctx, alice.ID, pending.ID)
	require.NoError(t, err)
	require.Nil(t, detail.Analysis)

	_, err = svc.Detail(ctx, bob.ID, record.ID)
	require.ErrorIs(t, err, ErrDetectionNotFound)

	_, err = svc.Detail(ctx, alice.ID, 999999)
	require.ErrorIs(t, err, ErrDetectionNotFound)
}

func TestQueryServiceDetailUsesCacheForCompletedRecords(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, svc := setupQueryService(t, client)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	completed := insertDetection(t, db, alice.ID, models.DetectionKindImage, time.Now(), models.RiskCritical)
	pending := insertDetection(t, db, alice.ID, models.DetectionKindImage, time.Now(), "")

	ctx := context.Background()

	_, err = svc.Detail(ctx, alice.ID, completed.ID)
	require.NoError(t, err)
	require.True(t, server.Exists(detailCacheKey(completed.ID)))
	require.Equal(t, time.Minute, server.TTL(detailCacheKey(completed.ID)))

	_, err = svc.Detail(ctx, alice.ID, pending.ID)
	require.NoError(t, err)
	require.False(t, server.Exists(detailCacheKey(pending.ID)))

	require.NoError(t, db.Exec("DELETE FROM analysis_results").Error)
	require.NoError(t, db.Exec("DELETE FROM detection_records WHERE id = ?", completed.ID).Error)

	detail, err := svc.Detail(ctx, alice.ID, completed.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Analysis)
	require.Equal(t, "critical", detail.Analysis.RiskLevel)

	_, err = svc.Detail(ctx, bob.ID, completed.ID)
	require.ErrorIs(t, err, ErrDetectionNotFound)
}

func TestQueryServiceAlertsAndSummary(t *testing.T) {
	db, svc := setupQueryService(t, nil)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	base := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
	insertDetection(t, db, alice.ID, models.DetectionKindImage, base, models.RiskSafe)
	high := insertDetection(t, db, alice.ID, models.DetectionKindImage, base.Add(time.Minute), models.RiskHigh)
	critical := insertDetection(t, db, alice.ID, models.DetectionKindImage, base.Add(2*time.Minute), models.RiskCritical)
	insertDetection(t, db, alice.ID, models.DetectionKindImage, base.Add(3*time.Minute), "")
	insertDetection(t, db, alice.ID, models.DetectionKindVideo, base.Add(4*time.Minute), "")
	insertDetection(t, db, bob.ID, models.DetectionKindImage, base.Add(5*time.Minute), models.RiskCritical)

	ctx := context.Background()

	alerts, err := svc.Alerts(ctx, alice.ID, nil)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, critical.ID, alerts[0].ID)
	require.Equal(t, high.ID, alerts[1].ID)
	require.NotNil(t, alerts[0].RiskLevel)
	require.Equal(t, "critical", *alerts[0].RiskLevel)

	summary, err := svc.Summary(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), summary.Total)
	require.Equal(t, int64(3), summary.Analyzed)
	require.Equal(t, int64(1), summary.Unanalyzed)
	require.Equal(t, int64(1), summary.Deferred)
	require.Equal(t, int64(1), summary.ByRiskLevel["safe"])
	require.Equal(t, int64(0), summary.ByRiskLevel["medium"])
	require.Equal(t, int64(1), summary.ByRiskLevel["high"])
	require.Equal(t, int64(1), summary.ByRiskLevel["critical"])
}
