package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAnalysisFailed is matched by every error an Analyzer returns.
var ErrAnalysisFailed = errors.New("analysis failed")

// Result is the structured payload returned by the inference service.
type Result struct {
	Emotion                string          `json:"emotion"`
	EmotionConfidence      float64         `json:"emotion_confidence"`
	Valence                float64         `json:"valence"`
	Arousal                float64         `json:"arousal"`
	ActiveAUs              []string        `json:"active_aus"`
	DrivingState           string          `json:"driving_state"`
	DrivingStateConfidence float64         `json:"driving_state_confidence"`
	RiskLevel              string          `json:"risk_level"`
	RiskColor              string          `json:"risk_color"`
	Recommendation         string          `json:"recommendation"`
	Details                json.RawMessage `json:"details,omitempty"`
}

// Analyzer converts a stored artifact into an analysis result.
type Analyzer interface {
	Analyze(ctx context.Context, artifactPath string) (Result, error)
}

// Error describes a failed analyzer call. StatusCode is zero when no response arrived.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("analyzer %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("analyzer %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrAnalysisFailed, e.Err}
}

// UniqueAUs returns the action-unit codes with duplicates and blanks removed,
// preserving first-seen order.
func UniqueAUs(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	unique := make([]string, 0, len(codes))
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}
	return unique
}
