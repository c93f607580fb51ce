package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnehgus0620/aiot-manager/internal/log"
)

const brokerPort = 18831

func startBroker(t *testing.T) {
	t.Helper()
	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("localhost:%d", brokerPort),
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
}

func newTestClient(t *testing.T, prefix string) *Client {
	t.Helper()
	client, err := NewClient(log.NewNop(),
		WithServer("localhost", brokerPort),
		WithClientID(prefix),
		WithOperationTimeout(5*time.Second),
	)
	require.NoError(t, err)
	return client
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	startBroker(t)

	sub := newTestClient(t, "sub")
	require.NoError(t, sub.Connect(context.Background()))
	t.Cleanup(func() { _ = sub.Disconnect() })

	received := make(chan []byte, 1)
	require.NoError(t, sub.Subscribe(context.Background(), "iot/sensor/minute", 1,
		func(_ context.Context, _ string, payload []byte) error {
			received <- payload
			return nil
		}))

	pub := newTestClient(t, "pub")
	require.NoError(t, pub.Connect(context.Background()))
	t.Cleanup(func() { _ = pub.Disconnect() })

	require.NoError(t, pub.Publish(context.Background(), "iot/sensor/minute", 1, []byte(`{"count":3}`)))

	select {
	case payload := <-received:
		assert.Equal(t, `{"count":3}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestPublishWhenDisconnected(t *testing.T) {
	client, err := NewClient(log.NewNop(), WithServer("localhost", brokerPort))
	require.NoError(t, err)
	assert.Error(t, client.Publish(context.Background(), "t", 1, nil))
}

func TestOptionValidation(t *testing.T) {
	_, err := NewClient(log.NewNop(), WithServer("", 1883))
	assert.Error(t, err)
	_, err = NewClient(log.NewNop(), WithQoS(2))
	assert.Error(t, err)
	_, err = NewClient(log.NewNop(), WithReconnectBackoff(2*time.Second, time.Second))
	assert.Error(t, err)
}
