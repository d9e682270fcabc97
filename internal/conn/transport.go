package conn

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

// Transport 底层双向消息连接
type Transport interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteClose(code int, reason string) error
	Close() error
}

// Dialer 建立 Transport
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebsocketDialer 基于 gorilla/websocket 的拨号器
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

// Dial 建立WebSocket连接
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	wsConn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	return NewTransport(wsConn, d.WriteTimeout), nil
}

// wsTransport 对 *websocket.Conn 的封装，写操作串行化
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	sendMutex    sync.Mutex
}

// NewTransport 包装一个已经建立的WebSocket连接
func NewTransport(wsConn *websocket.Conn, writeTimeout time.Duration) Transport {
	if writeTimeout <= 0 {
		writeTimeout = types.DefaultWriteTimeout
	}
	return &wsTransport{conn: wsConn, writeTimeout: writeTimeout}
}

func (t *wsTransport) ReadMessage() (int, []byte, error) {
	return t.conn.ReadMessage()
}

func (t *wsTransport) WriteMessage(messageType int, data []byte) error {
	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(messageType, data)
}

func (t *wsTransport) WriteClose(code int, reason string) error {
	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()

	return t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// closeEventFromError 从读错误中提取关闭码，非关闭帧错误视为 1006
func closeEventFromError(err error) types.CloseEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return types.CloseEvent{Code: ce.Code, Reason: ce.Text}
	}
	return types.CloseEvent{Code: websocket.CloseAbnormalClosure}
}

// isCloseFrame 错误是否来自对端的关闭帧
func isCloseFrame(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}
