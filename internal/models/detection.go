package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DetectionKind identifies the media type of a submitted artifact.
type DetectionKind string

const (
	// DetectionKindImage marks a still image submission.
	DetectionKindImage DetectionKind = "image"
	// DetectionKindVideo marks a video submission.
	DetectionKindVideo DetectionKind = "video"
)

// Valid reports whether the kind is one of the known values.
func (k DetectionKind) Valid() bool {
	return k == DetectionKindImage || k == DetectionKindVideo
}

// Derived record statuses exposed by history and detail views.
const (
	DetectionStatusCompleted  = "completed"
	DetectionStatusDeferred   = "deferred"
	DetectionStatusUnanalyzed = "unanalyzed"
)

// DetectionRecord is the persisted metadata for one submitted artifact. Kind and
// owner are fixed at creation; the only later change is the attachment of Analysis.
type DetectionRecord struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     uint            `gorm:"not null;index:idx_detection_owner_created,priority:1" json:"user_id"`
	Kind       DetectionKind   `gorm:"column:detection_type;size:16;not null" json:"detection_type"`
	FilePath   string          `gorm:"size:512;not null;uniqueIndex" json:"file_path"`
	FileName   string          `gorm:"size:255" json:"file_name"`
	MimeType   string          `gorm:"size:64" json:"mime_type"`
	SizeBytes  int64           `json:"size_bytes"`
	Checksum   string          `gorm:"size:64" json:"checksum"`
	ArchiveURL string          `gorm:"size:512" json:"archive_url"`
	CreatedAt  time.Time       `gorm:"index:idx_detection_owner_created,priority:2" json:"created_at"`
	User       User            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Analysis   *AnalysisResult `gorm:"foreignKey:DetectionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"analysis,omitempty"`
}

// Status derives the externally visible state of the record.
func (d DetectionRecord) Status() string {
	switch {
	case d.Analysis != nil:
		return DetectionStatusCompleted
	case d.Kind == DetectionKindVideo:
		return DetectionStatusDeferred
	default:
		return DetectionStatusUnanalyzed
	}
}

// AnalysisResult is the analyzer outcome linked 1:1 to a detection record.
type AnalysisResult struct {
	ID                     uint                        `gorm:"primaryKey" json:"id"`
	DetectionID            uint                        `gorm:"not null;uniqueIndex" json:"detection_id"`
	Emotion                string                      `gorm:"size:64" json:"emotion"`
	EmotionConfidence      float64                     `json:"emotion_confidence"`
	Valence                float64                     `json:"valence"`
	Arousal                float64                     `json:"arousal"`
	ActiveAUs              datatypes.JSONSlice[string] `gorm:"column:active_aus" json:"active_aus"`
	AUCount                int                         `gorm:"column:au_count" json:"au_count"`
	DrivingState           string                      `gorm:"size:64" json:"driving_state"`
	DrivingStateConfidence float64                     `json:"driving_state_confidence"`
	RiskLevel              RiskLevel                   `gorm:"size:16;index" json:"risk_level"`
	RiskColor              string                      `gorm:"size:32" json:"risk_color"`
	Recommendation         string                      `gorm:"type:text" json:"recommendation"`
	Details                datatypes.JSON              `gorm:"column:analysis_details" json:"details"`
	CreatedAt              time.Time                   `json:"created_at"`
}

// RiskLevel is the ordered severity attached to an analysis result.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRanks = map[RiskLevel]int{
	RiskSafe:     0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// ParseRiskLevel normalises a textual risk level; ok is false for unknown values.
func ParseRiskLevel(value string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(value)))
	_, ok := riskRanks[level]
	return level, ok
}

// RiskLevels returns every level in ascending severity.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskSafe, RiskMedium, RiskHigh, RiskCritical}
}

// Rank orders levels; unknown levels rank below safe.
func (r RiskLevel) Rank() int {
	if rank, ok := riskRanks[r]; ok {
		return rank
	}
	return -1
}

// AtLeast returns the levels whose severity is min or higher.
func AtLeast(min RiskLevel) []RiskLevel {
	levels := make([]RiskLevel, 0, len(riskRanks))
	for _, level := range RiskLevels() {
		if level.Rank() >= min.Rank() {
			levels = append(levels, level)
		}
	}
	return levels
}
