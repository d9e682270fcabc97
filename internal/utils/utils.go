package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// GenerateConnectionID 生成唯一连接ID
func GenerateConnectionID() string {
	return "conn-" + uuid.NewString()
}

// GeneratePeerID 生成服务端会话ID
func GeneratePeerID() string {
	return "peer-" + uuid.NewString()
}

// IsValidURL 检查URL是否是 ws/wss 地址
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}

// OrderURL 拼接订单跟踪地址: <base><orderID>/
func OrderURL(base, orderID string) (string, error) {
	if !IsValidURL(base) {
		return "", fmt.Errorf("invalid websocket url %q", base)
	}
	if orderID == "" {
		return "", fmt.Errorf("empty order id")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(orderID) + "/", nil
}

// GroupName 订单对应的广播组名
func GroupName(orderID string) string {
	return "order_" + orderID
}
