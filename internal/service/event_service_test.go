package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/drivesense-api/internal/dto"
)

func TestEventServiceDeliversToOwnerOnly(t *testing.T) {
	events := NewEventService(nil, "", nil, testLogger())

	alice, stopAlice := events.Subscribe(1)
	defer stopAlice()
	bob, stopBob := events.Subscribe(2)
	defer stopBob()

	require.NoError(t, events.Publish(context.Background(), dto.DetectionEvent{
		Type:        dto.DetectionEventCompleted,
		UserID:      1,
		DetectionID: 7,
		RiskLevel:   "high",
	}))

	select {
	case event := <-alice:
		require.Equal(t, uint(7), event.DetectionID)
		require.False(t, event.OccurredAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event for subscriber")
	}

	select {
	case event := <-bob:
		t.Fatalf("unexpected event for other user: %+v", event)
	default:
	}
}

func TestEventServiceUnsubscribeClosesChannel(t *testing.T) {
	events := NewEventService(nil, "", nil, testLogger())
	concrete := events.(*eventService)

	ch, stop := events.Subscribe(3)
	require.Equal(t, 1, concrete.broker.count(3))

	stop()
	stop()
	_, open := <-ch
	require.False(t, open)
	require.Equal(t, 0, concrete.broker.count(3))
}

func TestEventServiceFansOutAcrossNodesThroughRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := NewEventService(newClient(), "drivesense:test", nil, testLogger())
	receiver := NewEventService(newClient(), "drivesense:test", nil, testLogger())
	receiver.Start(ctx)

	require.Eventually(t, func() bool {
		return server.PubSubNumSub("drivesense:test:events")["drivesense:test:events"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	ch, stop := receiver.Subscribe(9)
	defer stop()

	require.NoError(t, publisher.Publish(ctx, dto.DetectionEvent{Type: dto.DetectionEventCompleted, UserID: 9, DetectionID: 11}))

	select {
	case event := <-ch:
		require.Equal(t, uint(11), event.DetectionID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected event relayed through redis")
	}
}

func TestEventServiceIgnoresOwnAndMalformedEnvelopes(t *testing.T) {
	events := NewEventService(nil, "", nil, testLogger())
	concrete := events.(*eventService)

	ch, stop := events.Subscribe(4)
	defer stop()

	concrete.handleEnvelope([]byte("not-json"))
	concrete.handleEnvelope([]byte(`{"source":"` + concrete.nodeID + `","event":{"user_id":4,"detection_id":1}}`))

	select {
	case event := <-ch:
		t.Fatalf("unexpected event: %+v", event)
	default:
	}

	concrete.handleEnvelope([]byte(`{"source":"other-node","event":{"user_id":4,"detection_id":2}}`))
	select {
	case event := <-ch:
		require.Equal(t, uint(2), event.DetectionID)
	default:
		t.Fatal("expected relayed event")
	}
}
