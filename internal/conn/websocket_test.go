package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer wsConn.Close()
		handler(wsConn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/orders/"
}

func TestConnection_RealWebsocketReconnect(t *testing.T) {
	var accepted atomic.Int64

	server := mockWSServer(t, func(c *websocket.Conn) {
		n := accepted.Inc()

		// 等待问候消息后回复一次状态
		_, hello, err := c.ReadMessage()
		if err != nil {
			return
		}
		if !strings.Contains(string(hello), "Hello server!") {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"status":"ready"}`))

		if n == 1 {
			// 第一次连接直接断开，不发送关闭帧
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := &types.Config{
		BaseURL:           wsURL(server),
		OrderID:           "BO2453938",
		ReconnectInterval: 50 * time.Millisecond,
		HandshakeTimeout:  time.Second,
		WriteTimeout:      time.Second,
		Hello:             types.DefaultHello,
	}
	logs := &logBuffer{}
	c, err := NewConnection(cfg, WithLogger(logs.Logger()))
	require.NoError(t, err)

	received := make(chan types.Message, 4)
	c.OnMessage(func(m types.Message) { received <- m })

	require.NoError(t, c.Connect(context.Background()))

	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			assert.Equal(t, map[string]any{"status": "ready"}, msg.Data.AsInterface())
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}

	assert.Equal(t, int64(2), accepted.Load())
	require.Eventually(t, c.IsConnected, waitFor, tick)

	closed := make(chan types.CloseEvent, 1)
	c.OnClose(func(ev types.CloseEvent) { closed <- ev })
	require.NoError(t, c.CloseManually())

	select {
	case ev := <-closed:
		assert.Equal(t, websocket.CloseNormalClosure, ev.Code)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for close")
	}

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(2), accepted.Load())
	assert.Equal(t, int64(1), c.GetStats().ReconnectAttempts)
}
