package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BetaCatPro/ordertrack-ws/internal/metrics"
)

func startServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1:0", metrics.New())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out map[string]any
	require.NoError(t, c.ReadJSON(&out))
	return out
}

func TestServer_TestSocketGreetsAndEchoes(t *testing.T) {
	_, ts := startServer(t)
	c := dial(t, ts, "/ws/test/")

	assert.Equal(t, map[string]any{"message": "WebSocket connected successfully!"}, readJSON(t, c))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, map[string]any{"echo": "ping"}, readJSON(t, c))
}

func TestServer_PushUpdateReachesOrderGroup(t *testing.T) {
	s, ts := startServer(t)
	a := dial(t, ts, "/ws/orders/BO2453938/")
	b := dial(t, ts, "/ws/orders/BO2453938/")
	other := dial(t, ts, "/ws/orders/BO0000001/")

	require.Eventually(t, func() bool { return s.GetClientCount("BO2453938") == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.GetClientCount("BO0000001") == 1 }, 2*time.Second, 5*time.Millisecond)

	body := `{"event":"manual_test","message":"Hello from Render service"}`
	resp, err := http.Post(ts.URL+"/orders/BO2453938/updates", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result PushResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, PushResult{Group: "order_BO2453938", Delivered: 2}, result)

	want := map[string]any{"event": "manual_test", "message": "Hello from Render service"}
	assert.Equal(t, want, readJSON(t, a))
	assert.Equal(t, want, readJSON(t, b))

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestServer_PushUpdateRejectsInvalidJSON(t *testing.T) {
	_, ts := startServer(t)

	resp, err := http.Post(ts.URL+"/orders/BO1/updates", "application/json", bytes.NewBufferString("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_PushUpdateAcceptsDuplicateKeys(t *testing.T) {
	s, ts := startServer(t)
	c := dial(t, ts, "/ws/orders/BO9/")
	require.Eventually(t, func() bool { return s.GetClientCount("BO9") == 1 }, 2*time.Second, 5*time.Millisecond)

	body := `{"status":"preparing","status":"ready"}`
	resp, err := http.Post(ts.URL+"/orders/BO9/updates", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, map[string]any{"status": "ready"}, readJSON(t, c))
}

func TestServer_LeavesGroupOnDisconnect(t *testing.T) {
	s, ts := startServer(t)
	c := dial(t, ts, "/ws/orders/BO7/")
	require.Eventually(t, func() bool { return s.GetClientCount("BO7") == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return s.GetClientCount("BO7") == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.PushUpdate("BO7", []byte(`{}`)))
}

func TestServer_Metrics(t *testing.T) {
	_, ts := startServer(t)
	dial(t, ts, "/ws/test/")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StopClosesOrderSockets(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()

	c, _, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+"/ws/orders/BO3/", nil)
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return s.GetClientCount("BO3") == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, <-served, http.ErrServerClosed)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = c.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, s.GetClientCount("BO3"))
}
