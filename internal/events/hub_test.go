package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	var got []Event
	hub.Subscribe(TopicConfigUpdated, func(_ context.Context, evt Event) {
		got = append(got, evt)
	})

	hub.Publish(context.Background(), TopicConfigUpdated, map[string]int{"keys": 2})
	hub.Publish(context.Background(), TopicCredentialChanged, nil) // 不同主题,不应派发

	require.Len(t, got, 1)
	require.Equal(t, TopicConfigUpdated, got[0].Topic)
	require.False(t, got[0].Timestamp.IsZero())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	count := 0
	unsub := hub.Subscribe(TopicCredentialChanged, func(context.Context, Event) { count++ })

	hub.Publish(context.Background(), TopicCredentialChanged, nil)
	unsub()
	hub.Publish(context.Background(), TopicCredentialChanged, nil)

	require.Equal(t, 1, count)
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var hub *Hub
	require.NotPanics(t, func() {
		hub.Publish(context.Background(), TopicConfigUpdated, nil)
	})
}
