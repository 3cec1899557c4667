package notify

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSNotifierOptions(t *testing.T) {
	_, err := NewNATSNotifier(NATSOptions{URL: "nats://127.0.0.1:4222"}, nil)
	assert.ErrorContains(t, err, "subject is required")

	// Nothing listens on port 1
	_, err = NewNATSNotifier(NATSOptions{
		URL:     "nats://127.0.0.1:1",
		Subject: "overhead.notifications",
		Timeout: 200 * time.Millisecond,
	}, nil)
	assert.ErrorContains(t, err, "failed to connect to nats")
}

// TestNATSNotifierPublish needs a server at OVERHEAD_TEST_NATS_URL.
func TestNATSNotifierPublish(t *testing.T) {
	url := os.Getenv("OVERHEAD_TEST_NATS_URL")
	if url == "" {
		t.Skip("OVERHEAD_TEST_NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("overhead.test", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	n, err := NewNATSNotifier(NATSOptions{URL: url, Subject: "overhead.test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "overhead.test", n.Subject())

	sent := Notification{ID: "id-1", Title: "UAL123 overhead", Body: "Boeing 737-800"}
	require.NoError(t, n.Notify(context.Background(), sent))

	select {
	case msg := <-msgs:
		var got Notification
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, sent.Title, got.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	require.NoError(t, n.Close())
	assert.Error(t, n.Notify(context.Background(), sent))
}
