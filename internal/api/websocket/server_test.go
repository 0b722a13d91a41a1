package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/courtcast/internal/publisher"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	ts := httptest.NewServer(NewServer(":0", hub, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubDeliversEvents(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "/ws/events")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Deliver(publisher.Event{
		Type:    publisher.EventPredictionsRefreshed,
		Payload: publisher.PredictionsRefreshed{Season: "2025-26", Count: 30, ModelVersion: "lstm_v1"},
	})

	ev := readEvent(t, conn)
	assert.Equal(t, publisher.EventPredictionsRefreshed, ev["type"])
	payload := ev["payload"].(map[string]interface{})
	assert.Equal(t, "2025-26", payload["season"])
	assert.Equal(t, float64(30), payload["count"])
}

func TestHubFiltersByRoute(t *testing.T) {
	hub, ts := startHub(t)
	preds := dial(t, ts, "/ws/predictions")
	live := dial(t, ts, "/ws/games/live")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Deliver(publisher.Event{Type: publisher.EventGamesLive, Payload: map[string]string{"game": "0022500500"}})
	hub.Deliver(publisher.Event{Type: publisher.EventPredictionsRefreshed, Payload: map[string]string{"season": "2025-26"}})

	assert.Equal(t, publisher.EventPredictionsRefreshed, readEvent(t, preds)["type"])
	assert.Equal(t, publisher.EventGamesLive, readEvent(t, live)["type"])
}

func TestHubThroughFanout(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "/ws/events")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	f := publisher.NewFanout(nil, hub)
	require.NoError(t, f.Publish(context.Background(), publisher.Event{Type: publisher.EventIngestionCompleted}))
	assert.Equal(t, publisher.EventIngestionCompleted, readEvent(t, conn)["type"])
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, ts := startHub(t)
	conn := dial(t, ts, "/ws/events")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	_, ts := startHub(t)
	resp, err := http.Get(ts.URL + "/ws/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["clients"])
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://courtcast.example"})
	r := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	r.Header.Set("Origin", "https://courtcast.example")
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))
	assert.True(t, originChecker(nil)(r))
}
