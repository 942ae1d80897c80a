package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRiskLevelOrdering(t *testing.T) {
	require.Less(t, RiskSafe.Rank(), RiskMedium.Rank())
	require.Less(t, RiskMedium.Rank(), RiskHigh.Rank())
	require.Less(t, RiskHigh.Rank(), RiskCritical.Rank())
	require.Equal(t, -1, RiskLevel("unknown").Rank())
}

func TestParseRiskLevel(t *testing.T) {
	level, ok := ParseRiskLevel(" HIGH ")
	require.True(t, ok)
	require.Equal(t, RiskHigh, level)

	_, ok = ParseRiskLevel("severe")
	require.False(t, ok)
}

func TestAtLeast(t *testing.T) {
	require.Equal(t, []RiskLevel{RiskHigh, RiskCritical}, AtLeast(RiskHigh))
	require.Equal(t, RiskLevels(), AtLeast(RiskSafe))
}

func TestDetectionRecordStatus(t *testing.T) {
	require.Equal(t, DetectionStatusUnanalyzed, DetectionRecord{Kind: DetectionKindImage}.Status())
	require.Equal(t, DetectionStatusDeferred, DetectionRecord{Kind: DetectionKindVideo}.Status())
	require.Equal(t, DetectionStatusCompleted, DetectionRecord{Kind: DetectionKindImage, Analysis: &AnalysisResult{}}.Status())
}
