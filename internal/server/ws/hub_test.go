package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// memBus hands out one channel per subscribed name.
type memBus struct {
	mu    sync.Mutex
	subs  map[string]chan []byte
	ready chan string
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string]chan []byte), ready: make(chan string, 16)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch := b.subs[channel]
	b.mu.Unlock()
	if ch != nil {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 8)
	b.mu.Lock()
	b.subs[channel] = ch
	b.mu.Unlock()
	b.ready <- channel
	return ch, nil
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func startHub(t *testing.T, bus *memBus) (*Hub, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger, Config{Mode: "PAPER", Venues: []string{"alpha", "beta"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	for range DefaultChannels {
		select {
		case <-bus.ready:
		case <-time.After(2 * time.Second):
			t.Fatal("hub did not subscribe")
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_BroadcastsBusEvents(t *testing.T) {
	bus := newMemBus()
	hub, url := startHub(t, bus)
	conn := dial(t, url)

	status := readEnvelope(t, conn)
	assert.Equal(t, "engine_status", status.Channel)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(status.Payload, &payload))
	assert.Equal(t, "paper", payload["mode"])
	assert.Equal(t, []any{"alpha", "beta"}, payload["venues"])
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelTrades, []byte(`{"id":"t1","state":"SETTLED"}`)))
	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelTrades, env.Channel)
	assert.JSONEq(t, `{"id":"t1","state":"SETTLED"}`, string(env.Payload))
}

func TestHub_Unsubscribe(t *testing.T) {
	bus := newMemBus()
	hub, url := startHub(t, bus)
	conn := dial(t, url)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelOpportunities}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.isSubscribed(domain.ChannelOpportunities) {
				return false
			}
		}
		return len(hub.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelOpportunities, []byte(`{"id":"o1"}`)))
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelRisk, []byte(`{"reason":"daily"}`)))
	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelRisk, env.Channel)
}

func TestClient_IsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"arb:trades": true, "arb:stat*": true}}
	assert.True(t, c.isSubscribed("arb:trades"))
	assert.True(t, c.isSubscribed("arb:stats"))
	assert.False(t, c.isSubscribed("arb:risk"))
}
