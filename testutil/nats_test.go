package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockNATSClient_PublishDeliversToSubscribers(t *testing.T) {
	client := NewMockNATSClient()
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []string
	)
	require.NoError(t, client.Subscribe(ctx, "robot.log", func(_ context.Context, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(data))
	}))

	// subscribing from a handler must not deadlock
	require.NoError(t, client.Subscribe(ctx, "robot.log", func(ctx context.Context, _ []byte) {
		_ = client.Subscribe(ctx, "robot.other", func(context.Context, []byte) {})
	}))

	go func() {
		for _, msg := range []string{"one", "two", "three"} {
			_ = client.Publish(ctx, "robot.log", []byte(msg))
		}
	}()

	WaitForMessageCount(t, client, "robot.log", 3, time.Second)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, seen)
	AssertNoMessages(t, client, "robot.other")

	client.ClearAll()
	AssertNoMessages(t, client, "robot.log")
	assert.Nil(t, client.GetMessages("robot.log"))

	require.NoError(t, client.Close())
	assert.Error(t, client.Publish(ctx, "robot.log", []byte("late")))
	assert.Error(t, client.Subscribe(ctx, "robot.log", func(context.Context, []byte) {}))
}

func TestMockNATSClient_Request(t *testing.T) {
	client := NewMockNATSClient()
	ctx := context.Background()

	_, err := client.Request(ctx, "device.motor", []byte("go"))
	assert.Error(t, err)

	client.HandleRequest("device.motor", func(_ context.Context, data []byte) ([]byte, error) {
		return append([]byte("ok:"), data...), nil
	})
	reply, err := client.Request(ctx, "device.motor", []byte("go"))
	require.NoError(t, err)
	assert.Equal(t, "ok:go", string(reply))
	assert.Equal(t, 2, client.GetMessageCount("device.motor"))
}
