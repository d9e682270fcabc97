package config

import "github.com/BetaCatPro/ordertrack-ws/pkg/types"

// ApplyDefaults 为零值字段填充默认值
func ApplyDefaults(c *types.Config) {
	if c.BaseURL == "" {
		c.BaseURL = types.DefaultBaseURL
	}
	if c.OrderID == "" {
		c.OrderID = types.DefaultOrderID
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = types.DefaultReconnectInterval
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = types.DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = types.DefaultWriteTimeout
	}
	if c.Hello == nil {
		c.Hello = types.DefaultHello
	}
	if c.Codec == "" {
		c.Codec = types.DefaultCodec
	}
	if c.Compression == "" {
		c.Compression = types.DefaultCompression
	}
}
