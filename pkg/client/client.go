package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BetaCatPro/ordertrack-ws/internal/conn"
	"github.com/BetaCatPro/ordertrack-ws/internal/errors"
	"github.com/BetaCatPro/ordertrack-ws/internal/metrics"
	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

// shutdownTimeout 主动关闭后等待关闭事件的最长时间
const shutdownTimeout = 3 * time.Second

// Client 订单跟踪诊断客户端
type Client struct {
	config      *types.Config
	connection  *conn.Connection
	errorCenter *errors.ErrorCenter
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	mutex       sync.RWMutex

	closed     chan struct{}
	closedOnce sync.Once

	// 回调函数
	messageHandler    func(types.Message)
	connectHandler    func()
	disconnectHandler func(types.CloseEvent)
}

// NewClient 创建新的WebSocket客户端。m 可以为 nil。
func NewClient(config *types.Config, m *metrics.Metrics, opts ...conn.Option) (*Client, error) {
	logger := log.Logger.With().Str("component", "client").Logger()
	errorCenter := errors.NewErrorCenter()

	base := []conn.Option{
		conn.WithLogger(logger),
		conn.WithMetrics(m),
		conn.WithErrorCenter(errorCenter),
	}
	connection, err := conn.NewConnection(config, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:      config,
		connection:  connection,
		errorCenter: errorCenter,
		metrics:     m,
		logger:      logger,
		closed:      make(chan struct{}),
	}

	connection.OnMessage(c.handleMessage)
	connection.OnConnect(c.handleConnect)
	connection.OnClose(c.handleClose)
	return c, nil
}

// Connect 连接到WebSocket服务器
func (c *Client) Connect(ctx context.Context) error {
	return c.connection.Connect(ctx)
}

// Run 连接并保持运行直到 ctx 结束，然后主动关闭
func (c *Client) Run(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("initial connect failed, retry scheduled")
	}

	<-ctx.Done()

	wasConnected := c.IsConnected()
	if err := c.CloseManually(); err != nil {
		return err
	}
	if !wasConnected {
		return nil
	}

	select {
	case <-c.closed:
	case <-time.After(shutdownTimeout):
		c.logger.Warn().Msg("timed out waiting for close")
	}
	return nil
}

// SendMessage 发送消息；未连接时丢弃并返回 ErrConnectionClosed
func (c *Client) SendMessage(msg any) error {
	return c.connection.Send(msg)
}

// CloseManually 主动关闭，不再重连
func (c *Client) CloseManually() error {
	return c.connection.CloseManually()
}

// SetMessageHandler 设置消息处理回调
func (c *Client) SetMessageHandler(handler func(types.Message)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.messageHandler = handler
}

// SetConnectHandler 设置连接成功回调
func (c *Client) SetConnectHandler(handler func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.connectHandler = handler
}

// SetDisconnectHandler 设置断开连接回调
func (c *Client) SetDisconnectHandler(handler func(types.CloseEvent)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disconnectHandler = handler
}

// AddErrorCallback 订阅传输错误
func (c *Client) AddErrorCallback(callback func(error)) {
	c.errorCenter.AddErrorCallback(callback)
}

func (c *Client) handleMessage(msg types.Message) {
	c.mutex.RLock()
	handler := c.messageHandler
	c.mutex.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

func (c *Client) handleConnect() {
	c.mutex.RLock()
	handler := c.connectHandler
	c.mutex.RUnlock()
	if handler != nil {
		handler()
	}
}

func (c *Client) handleClose(ev types.CloseEvent) {
	c.mutex.RLock()
	handler := c.disconnectHandler
	c.mutex.RUnlock()
	if handler != nil {
		handler(ev)
	}

	if c.connection.ManuallyClosed() {
		c.closedOnce.Do(func() { close(c.closed) })
	}
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.connection.IsConnected()
}

// GetStats 获取统计信息
func (c *Client) GetStats() types.ConnectionStats {
	return c.connection.GetStats()
}

// GetConnectionInfo 获取连接信息
func (c *Client) GetConnectionInfo() types.ConnectionInfo {
	return c.connection.GetInfo()
}
