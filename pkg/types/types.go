package types

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// 默认配置（与原始诊断脚本保持一致）
const (
	DefaultBaseURL           = "wss://bistropulse-backend.onrender.com/ws/orders/"
	DefaultOrderID           = "BO4014714"
	DefaultReconnectInterval = 5 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultCodec             = "json"
	DefaultCompression       = "none"
)

// DefaultHello 连接建立后发送的诊断消息
var DefaultHello = map[string]any{"test": "Hello server!"}

// Config 客户端配置结构体
type Config struct {
	BaseURL           string         `yaml:"base_url"`           // 订单WebSocket基础地址（以 / 结尾）
	OrderID           string         `yaml:"order_id"`           // 订单ID
	ReconnectInterval time.Duration  `yaml:"reconnect_interval"` // 固定重连间隔
	HandshakeTimeout  time.Duration  `yaml:"handshake_timeout"`  // 握手超时
	WriteTimeout      time.Duration  `yaml:"write_timeout"`      // 写超时
	Hello             map[string]any `yaml:"hello"`              // 连接建立后发送的消息，nil 表示不发送
	Codec             string         `yaml:"codec"`              // 消息协议: json | protobuf
	Compression       string         `yaml:"compression"`        // 压缩算法: none | gzip | snappy
}

// Message 收到的一条消息
type Message struct {
	Type         int             // 帧类型（TextMessage, BinaryMessage）
	Raw          []byte          // 原始内容（已解压）
	Data         *structpb.Value // 解码后的结构化内容，解码失败时为 nil
	ConnectionID string          // 所属连接ID
	ReceivedAt   time.Time       // 接收时间
}

// Decoded 是否成功解码
func (m Message) Decoded() bool {
	return m.Data != nil
}

// CloseEvent 连接关闭事件
type CloseEvent struct {
	Code   int
	Reason string
}

// ConnectionStats 连接统计信息
type ConnectionStats struct {
	Connects          int64 // 成功建立连接次数
	ReceivedMessages  int64 // 收到的消息数
	SentMessages      int64 // 发送的消息数
	DroppedMessages   int64 // 未连接时丢弃的消息数
	ReconnectAttempts int64 // 已调度的重连次数
}

// ConnectionInfo 连接信息
type ConnectionInfo struct {
	ID        string          // 连接ID
	URL       string          // 连接URL
	Connected bool            // 是否已连接
	Stats     ConnectionStats // 统计信息
}
