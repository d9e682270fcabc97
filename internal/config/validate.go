package config

import (
	"fmt"

	"github.com/BetaCatPro/ordertrack-ws/internal/compression"
	"github.com/BetaCatPro/ordertrack-ws/internal/errors"
	"github.com/BetaCatPro/ordertrack-ws/internal/protocol"
	"github.com/BetaCatPro/ordertrack-ws/internal/utils"
	"github.com/BetaCatPro/ordertrack-ws/pkg/types"
)

// Validate 校验配置，地址/订单/间隔错误返回 ErrInvalidConfig
func Validate(c *types.Config) error {
	if !utils.IsValidURL(c.BaseURL) {
		return fmt.Errorf("%w: base_url must be a ws:// or wss:// url, got %q", errors.ErrInvalidConfig, c.BaseURL)
	}
	if c.OrderID == "" {
		return fmt.Errorf("%w: order_id is required", errors.ErrInvalidConfig)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("%w: reconnect_interval must be > 0", errors.ErrInvalidConfig)
	}
	if c.HandshakeTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: timeouts must be >= 0", errors.ErrInvalidConfig)
	}
	if _, err := protocol.GetProtocol(c.Codec); err != nil {
		return err
	}
	if _, err := compression.GetCompressor(c.Compression); err != nil {
		return err
	}
	return nil
}
