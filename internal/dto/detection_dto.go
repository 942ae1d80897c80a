package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/drivesense-api/internal/models"
)

// AnalysisResultResponse serializes a persisted analysis result.
type AnalysisResultResponse struct {
	ID                     uint            `json:"id"`
	DetectionID            uint            `json:"detection_id"`
	Emotion                string          `json:"emotion"`
	EmotionConfidence      float64         `json:"emotion_confidence"`
	Valence                float64         `json:"valence"`
	Arousal                float64         `json:"arousal"`
	ActiveAUs              []string        `json:"active_aus"`
	AUCount                int             `json:"au_count"`
	DrivingState           string          `json:"driving_state"`
	DrivingStateConfidence float64         `json:"driving_state_confidence"`
	RiskLevel              string          `json:"risk_level"`
	RiskColor              string          `json:"risk_color"`
	Recommendation         string          `json:"recommendation"`
	Details                json.RawMessage `json:"details"`
	CreatedAt              time.Time       `json:"created_at"`
}

// ImageDetectionResponse is returned after a completed image submission.
type ImageDetectionResponse struct {
	Success        bool                   `json:"success"`
	DetectionID    uint                   `json:"detectionId"`
	Status         string                 `json:"status"`
	AnalysisResult AnalysisResultResponse `json:"analysisResult"`
}

// VideoDetectionResponse acknowledges a video submission whose analysis is deferred.
type VideoDetectionResponse struct {
	Success     bool   `json:"success"`
	DetectionID uint   `json:"detectionId"`
	Status      string `json:"status"`
	State       string `json:"state"`
	Message     string `json:"message"`
}

// HistoryItem is one history/alert row: the record plus a summary of its result.
// Result fields are null when no analysis is attached.
type HistoryItem struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"user_id"`
	DetectionType string    `json:"detection_type"`
	FilePath      string    `json:"file_path"`
	FileName      string    `json:"file_name"`
	CreatedAt     time.Time `json:"created_at"`
	Status        string    `json:"status"`
	DrivingState  *string   `json:"driving_state"`
	RiskLevel     *string   `json:"risk_level"`
	RiskColor     *string   `json:"risk_color"`
	Emotion       *string   `json:"emotion"`
}

// DetectionDetail is the full joined view of one record.
type DetectionDetail struct {
	ID            uint                    `json:"id"`
	UserID        uint                    `json:"user_id"`
	DetectionType string                  `json:"detection_type"`
	FilePath      string                  `json:"file_path"`
	FileName      string                  `json:"file_name"`
	MimeType      string                  `json:"mime_type"`
	SizeBytes     int64                   `json:"size_bytes"`
	Checksum      string                  `json:"checksum"`
	ArchiveURL    string                  `json:"archive_url,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	Status        string                  `json:"status"`
	Analysis      *AnalysisResultResponse `json:"analysis"`
}

// DetectionSummaryResponse aggregates an owner's detections.
type DetectionSummaryResponse struct {
	Total       int64            `json:"total"`
	Analyzed    int64            `json:"analyzed"`
	Unanalyzed  int64            `json:"unanalyzed"`
	Deferred    int64            `json:"deferred"`
	ByRiskLevel map[string]int64 `json:"by_risk_level"`
}

// NewAnalysisResultResponse converts an analysis model into a DTO.
func NewAnalysisResultResponse(model models.AnalysisResult) AnalysisResultResponse {
	activeAUs := []string(model.ActiveAUs)
	if activeAUs == nil {
		activeAUs = []string{}
	}
	details := json.RawMessage(model.Details)
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	return AnalysisResultResponse{
		ID:                     model.ID,
		DetectionID:            model.DetectionID,
		Emotion:                model.Emotion,
		EmotionConfidence:      model.EmotionConfidence,
		Valence:                model.Valence,
		Arousal:                model.Arousal,
		ActiveAUs:              activeAUs,
		AUCount:                model.AUCount,
		DrivingState:           model.DrivingState,
		DrivingStateConfidence: model.DrivingStateConfidence,
		RiskLevel:              string(model.RiskLevel),
		RiskColor:              model.RiskColor,
		Recommendation:         model.Recommendation,
		Details:                details,
		CreatedAt:              model.CreatedAt,
	}
}

// NewHistoryItem converts a record with its optional analysis into a history row.
func NewHistoryItem(model models.DetectionRecord) HistoryItem {
	item := HistoryItem{
		ID:            model.ID,
		UserID:        model.UserID,
		DetectionType: string(model.Kind),
		FilePath:      model.FilePath,
		FileName:      model.FileName,
		CreatedAt:     model.CreatedAt,
		Status:        model.Status(),
	}

	if model.Analysis != nil {
		state := model.Analysis.DrivingState
		risk := string(model.Analysis.RiskLevel)
		color := model.Analysis.RiskColor
		emotion := model.Analysis.Emotion
		item.DrivingState = &state
		item.RiskLevel = &risk
		item.RiskColor = &color
		item.Emotion = &emotion
	}

	return item
}

// NewHistoryItemSlice converts records into history rows.
func NewHistoryItemSlice(records []models.DetectionRecord) []HistoryItem {
	items := make([]HistoryItem, 0, len(records))
	for _, record := range records {
		items = append(items, NewHistoryItem(record))
	}
	return items
}

// NewDetectionDetail converts a record into its full detail view.
func NewDetectionDetail(model models.DetectionRecord) DetectionDetail {
	detail := DetectionDetail{
		ID:            model.ID,
		UserID:        model.UserID,
		DetectionType: string(model.Kind),
		FilePath:      model.FilePath,
		FileName:      model.FileName,
		MimeType:      model.MimeType,
		SizeBytes:     model.SizeBytes,
		Checksum:      model.Checksum,
		ArchiveURL:    model.ArchiveURL,
		CreatedAt:     model.CreatedAt,
		Status:        model.Status(),
	}

	if model.Analysis != nil {
		analysis := NewAnalysisResultResponse(*model.Analysis)
		detail.Analysis = &analysis
	}

	return detail
}
