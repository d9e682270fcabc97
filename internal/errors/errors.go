package errors

import (
	"errors"
	"sync"
)

// 定义错误类型
var (
	ErrConnectionClosed    = errors.New("connection closed")
	ErrInvalidMessage      = errors.New("invalid message")
	ErrCompressionFailed   = errors.New("compression failed")
	ErrDecompressionFailed = errors.New("decompression failed")
	ErrUnknownCodec        = errors.New("unknown codec")
	ErrUnknownCompression  = errors.New("unknown compression")
	ErrInvalidConfig       = errors.New("invalid config")
)

// ErrorCenter 错误处理中心
type ErrorCenter struct {
	mu             sync.RWMutex
	errorCallbacks []func(error) // 错误回调函数列表
}

// NewErrorCenter 创建新的错误处理中心
func NewErrorCenter() *ErrorCenter {
	return &ErrorCenter{
		errorCallbacks: make([]func(error), 0),
	}
}

// AddErrorCallback 添加错误回调函数
func (ec *ErrorCenter) AddErrorCallback(callback func(error)) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.errorCallbacks = append(ec.errorCallbacks, callback)
}

// ReportError 报告错误
func (ec *ErrorCenter) ReportError(err error) {
	if err == nil {
		return
	}
	ec.mu.RLock()
	callbacks := ec.errorCallbacks
	ec.mu.RUnlock()

	for _, callback := range callbacks {
		callback(err)
	}
}
