package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/BetaCatPro/ordertrack-ws/internal/compression"
	"github.com/BetaCatPro/ordertrack-ws/internal/errors"
	"github.com/BetaCatPro/ordertrack-ws/internal/metrics"
	"github.com/BetaCatPro/ordertrack-ws/internal/protocol"
	"github.com/BetaCatPro/ordertrack-ws/internal/utils"
	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

// closeGracePeriod 主动关闭后等待对端回应关闭帧的时间
const closeGracePeriod = 2 * time.Second

// Option 连接选项
type Option func(*Connection)

// WithDialer 替换拨号器
func WithDialer(d Dialer) Option {
	return func(c *Connection) { c.dialer = d }
}

// WithScheduler 替换重连定时器
func WithScheduler(s Scheduler) Option {
	return func(c *Connection) { c.scheduler = s }
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connection) { c.logger = l }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) { c.metrics = m }
}

// WithErrorCenter 共享错误处理中心
func WithErrorCenter(ec *errors.ErrorCenter) Option {
	return func(c *Connection) { c.errorCenter = ec }
}

// Connection 订单跟踪连接：单个WebSocket连接，意外关闭后按固定间隔重连
type Connection struct {
	url          string
	config       *types.Config
	dialer       Dialer
	scheduler    Scheduler
	protocol     protocol.MessageProtocol
	compressor   compression.Compressor
	errorCenter  *errors.ErrorCenter
	reconnectMgr *ReconnectManager
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	mutex     sync.Mutex
	transport Transport // 当前连接，未连接时为 nil
	id        string
	ctx       context.Context

	manuallyClosed atomic.Bool
	isConnected    atomic.Bool

	connects atomic.Int64
	received atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64

	handlerMutex   sync.RWMutex
	messageHandler func(types.Message)
	connectHandler func()
	closeHandler   func(types.CloseEvent)
}

// NewConnection 根据配置创建连接，尚未拨号
func NewConnection(config *types.Config, opts ...Option) (*Connection, error) {
	url, err := utils.OrderURL(config.BaseURL, config.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	proto, err := protocol.GetProtocol(config.Codec)
	if err != nil {
		return nil, err
	}
	compressor, err := compression.GetCompressor(config.Compression)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		url:        url,
		config:     config,
		protocol:   proto,
		compressor: compressor,
		logger:     log.Logger,
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.dialer == nil {
		c.dialer = &WebsocketDialer{
			HandshakeTimeout: config.HandshakeTimeout,
			WriteTimeout:     config.WriteTimeout,
		}
	}
	if c.errorCenter == nil {
		c.errorCenter = errors.NewErrorCenter()
	}
	c.logger = c.logger.With().Str("order_id", config.OrderID).Logger()
	c.reconnectMgr = NewReconnectManager(config.ReconnectInterval, c.scheduler)

	// 传输错误只记录，不做恢复；随后的关闭事件决定是否重连
	c.errorCenter.AddErrorCallback(func(err error) {
		c.logger.Error().Err(err).Msg("websocket error")
	})

	return c, nil
}

// OnMessage 设置消息回调
func (c *Connection) OnMessage(handler func(types.Message)) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.messageHandler = handler
}

// OnConnect 设置连接成功回调
func (c *Connection) OnConnect(handler func()) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.connectHandler = handler
}

// OnClose 设置关闭回调
func (c *Connection) OnClose(handler func(types.CloseEvent)) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.closeHandler = handler
}

// Connect 建立连接。拨号失败时返回错误，此时重连已被调度。
// ctx 同时约束之后的自动重连：ctx 结束后不再重连。
func (c *Connection) Connect(ctx context.Context) error {
	c.mutex.Lock()
	c.ctx = ctx
	c.mutex.Unlock()

	return c.connect(ctx)
}

func (c *Connection) connect(ctx context.Context) error {
	if c.manuallyClosed.Load() {
		return errors.ErrConnectionClosed
	}

	tr, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", c.url, err)
		c.errorCenter.ReportError(err)
		c.handleClose(nil, types.CloseEvent{Code: websocket.CloseAbnormalClosure})
		return err
	}

	c.mutex.Lock()
	if c.manuallyClosed.Load() {
		c.mutex.Unlock()
		_ = tr.Close()
		return errors.ErrConnectionClosed
	}
	c.transport = tr
	c.id = utils.GenerateConnectionID()
	c.mutex.Unlock()

	c.isConnected.Store(true)
	c.connects.Inc()
	c.metrics.ObserveConnect()
	c.logger.Info().Str("url", c.url).Msg("connected")

	go c.readMessages(tr)

	if c.config.Hello != nil {
		_ = c.Send(c.config.Hello)
	}

	c.handlerMutex.RLock()
	handler := c.connectHandler
	c.handlerMutex.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// readMessages 读取消息直到连接关闭
func (c *Connection) readMessages(tr Transport) {
	for {
		msgType, data, err := tr.ReadMessage()
		if err != nil {
			if !isCloseFrame(err) && !c.manuallyClosed.Load() {
				c.errorCenter.ReportError(fmt.Errorf("read message: %w", err))
			}
			c.handleClose(tr, closeEventFromError(err))
			return
		}

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			c.handleMessage(msgType, data)
		}
	}
}

// handleMessage 解码并记录一条消息，解码失败时记录原始文本
func (c *Connection) handleMessage(msgType int, data []byte) {
	data = compression.Inflate(c.compressor, msgType, data)

	c.mutex.Lock()
	id := c.id
	c.mutex.Unlock()

	msg := types.Message{
		Type:         msgType,
		Raw:          data,
		ConnectionID: id,
		ReceivedAt:   time.Now(),
	}
	c.received.Inc()
	c.metrics.ObserveMessage("in")

	if v, err := c.protocol.Decode(data); err == nil {
		msg.Data = v
		c.logger.Info().Interface("data", v.AsInterface()).Msg("message from server")
	} else {
		c.metrics.ObserveDecodeFallback()
		c.logger.Info().Str("raw", string(data)).Msg("raw message from server")
	}

	c.handlerMutex.RLock()
	handler := c.messageHandler
	c.handlerMutex.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

// handleClose 处理关闭事件；非主动关闭时调度一次重连
func (c *Connection) handleClose(tr Transport, ev types.CloseEvent) {
	c.mutex.Lock()
	if tr != nil && c.transport == tr {
		c.transport = nil
	}
	ctx := c.ctx
	c.mutex.Unlock()

	if tr != nil {
		_ = tr.Close()
	}
	c.isConnected.Store(false)

	manual := c.manuallyClosed.Load()
	c.metrics.ObserveClose(manual)
	c.logger.Warn().Int("code", ev.Code).Str("reason", ev.Reason).Msg("websocket closed")

	c.handlerMutex.RLock()
	handler := c.closeHandler
	c.handlerMutex.RUnlock()
	if handler != nil {
		handler(ev)
	}

	if manual {
		return
	}
	if ctx.Err() != nil {
		c.logger.Info().Err(ctx.Err()).Msg("context done, not reconnecting")
		return
	}

	if c.reconnectMgr.ScheduleReconnect(func() { _ = c.connect(ctx) }) {
		c.metrics.ObserveReconnect()
		c.logger.Info().Dur("in", c.reconnectMgr.Interval()).Msg("reconnecting")
	}
}

// Send JSON编码后发送；未连接时记录警告并丢弃，不排队
func (c *Connection) Send(v any) error {
	c.mutex.Lock()
	tr := c.transport
	c.mutex.Unlock()

	if tr == nil || !c.isConnected.Load() {
		c.dropped.Inc()
		c.metrics.ObserveDropped()
		c.logger.Warn().Msg("socket not open, message dropped")
		return errors.ErrConnectionClosed
	}

	payload, err := c.protocol.Encode(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	payload, err = c.compressor.Compress(payload)
	if err != nil {
		return err
	}

	frameType := c.protocol.FrameType()
	if _, ok := c.compressor.(compression.NoopCompressor); !ok {
		frameType = websocket.BinaryMessage
	}

	if err := tr.WriteMessage(frameType, payload); err != nil {
		err = fmt.Errorf("write message: %w", err)
		c.errorCenter.ReportError(err)
		return err
	}

	c.sent.Inc()
	c.metrics.ObserveMessage("out")
	c.logger.Info().Interface("message", v).Msg("sent")
	return nil
}

// CloseManually 设置主动关闭标记并关闭连接；待执行的重连会被取消
func (c *Connection) CloseManually() error {
	c.manuallyClosed.Store(true)
	if c.reconnectMgr.Stop() {
		c.logger.Info().Msg("pending reconnect cancelled")
	}

	c.mutex.Lock()
	tr := c.transport
	c.mutex.Unlock()
	if tr == nil {
		return nil
	}

	if err := tr.WriteClose(websocket.CloseNormalClosure, ""); err != nil {
		// 关闭帧发不出去时直接断开，读循环会收到错误并触发关闭事件
		return tr.Close()
	}
	time.AfterFunc(closeGracePeriod, func() { _ = tr.Close() })
	return nil
}

// IsConnected 检查连接状态
func (c *Connection) IsConnected() bool {
	return c.isConnected.Load()
}

// ManuallyClosed 是否已主动关闭
func (c *Connection) ManuallyClosed() bool {
	return c.manuallyClosed.Load()
}

// URL 连接地址
func (c *Connection) URL() string {
	return c.url
}

// GetID 获取当前连接ID
func (c *Connection) GetID() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.id
}

// GetStats 获取连接统计信息
func (c *Connection) GetStats() types.ConnectionStats {
	return types.ConnectionStats{
		Connects:          c.connects.Load(),
		ReceivedMessages:  c.received.Load(),
		SentMessages:      c.sent.Load(),
		DroppedMessages:   c.dropped.Load(),
		ReconnectAttempts: c.reconnectMgr.Attempts(),
	}
}

// GetInfo 获取连接信息
func (c *Connection) GetInfo() types.ConnectionInfo {
	return types.ConnectionInfo{
		ID:        c.GetID(),
		URL:       c.url,
		Connected: c.IsConnected(),
		Stats:     c.GetStats(),
	}
}
