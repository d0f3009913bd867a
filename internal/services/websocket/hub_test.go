package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungdetect/internal/logger"
)

func startHub(t *testing.T, opts ...func(*HubService)) (*HubService, string) {
	t.Helper()

	hub := NewHubService(logger.NewDiscardLogger())
	for _, opt := range opts {
		opt(hub)
	}
	go hub.Run()
	t.Cleanup(hub.Stop)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.GetClientCount() == n },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastReachesAllViewers(t *testing.T) {
	hub, url := startHub(t)

	a := dial(t, url)
	b := dial(t, url)
	waitForClients(t, hub, 2)

	hub.Broadcast([]byte(`{"type":"analysis"}`))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"analysis"}`, string(msg))
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_StopClosesViewers(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	waitForClients(t, hub, 1)

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.GetClientCount())

	// no-ops once stopped
	hub.Broadcast([]byte("late"))
	hub.Stop()
}

func TestHub_PingsIdleViewers(t *testing.T) {
	assert.Less(t, PingPeriod, PongWait)

	_, url := startHub(t, func(h *HubService) { h.pingPeriod = 20 * time.Millisecond })
	conn := dial(t, url)

	pinged := make(chan struct{})
	var once sync.Once
	conn.SetPingHandler(func(data string) error {
		once.Do(func() { close(pinged) })
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received from hub")
	}
}
