package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeferredQueueFallsBackToLogging(t *testing.T) {
	queue := NewDeferredQueue(nil, "drivesense:detections", testLogger())
	_, ok := queue.(*logDeferredQueue)
	require.True(t, ok)

	require.NoError(t, queue.Enqueue(context.Background(), DeferredJob{DetectionID: 1, Kind: "video"}))
}

func TestNATSSubjectBase(t *testing.T) {
	require.Equal(t, "drivesense.detections", natsSubjectBase("drivesense:detections"))
	require.Equal(t, "plain", natsSubjectBase("plain"))
}
