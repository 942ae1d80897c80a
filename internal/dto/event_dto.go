package dto

import "time"

// DetectionEventCompleted is emitted once an analysis result is persisted.
const DetectionEventCompleted = "detection.completed"

// DetectionEvent is pushed to live subscribers of the owning user.
type DetectionEvent struct {
	Type         string    `json:"type"`
	UserID       uint      `json:"user_id"`
	DetectionID  uint      `json:"detection_id"`
	Emotion      string    `json:"emotion"`
	DrivingState string    `json:"driving_state"`
	RiskLevel    string    `json:"risk_level"`
	RiskColor    string    `json:"risk_color"`
	Alert        bool      `json:"alert"`
	OccurredAt   time.Time `json:"occurred_at"`
}
