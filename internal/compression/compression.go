package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"

	"github.com/BetaCatPro/ordertrack-ws/internal/errors"
)

// Compressor 压缩器接口
type Compressor interface {
	Name() string
	Compress([]byte) ([]byte, error)   // 压缩数据
	Decompress([]byte) ([]byte, error) // 解压缩数据
}

// NoopCompressor 不做任何处理
type NoopCompressor struct{}

func (NoopCompressor) Name() string { return "none" }

func (NoopCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (NoopCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// GzipCompressor Gzip压缩实现
type GzipCompressor struct{}

func (GzipCompressor) Name() string { return "gzip" }

// Compress 使用Gzip压缩数据
func (GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCompressionFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCompressionFailed, err)
	}
	return buf.Bytes(), nil
}

// Decompress 使用Gzip解压缩数据
func (GzipCompressor) Decompress(data []byte) ([]byte, error) {
	// 检查gzip魔数（1F 8B）
	if len(data) < 2 || data[0] != 0x1F || data[1] != 0x8B {
		return nil, fmt.Errorf("%w: invalid gzip header", errors.ErrDecompressionFailed)
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecompressionFailed, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecompressionFailed, err)
	}
	return out, nil
}

// SnappyCompressor Snappy压缩实现
type SnappyCompressor struct{}

func (SnappyCompressor) Name() string { return "snappy" }

// Compress 使用Snappy压缩数据
func (SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress 使用Snappy解压缩数据
func (SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", errors.ErrDecompressionFailed)
	}

	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecompressionFailed, err)
	}
	return decoded, nil
}

// GetCompressor 根据名称获取压缩器
func GetCompressor(name string) (Compressor, error) {
	switch name {
	case "", "none":
		return NoopCompressor{}, nil
	case "gzip":
		return GzipCompressor{}, nil
	case "snappy":
		return SnappyCompressor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownCompression, name)
	}
}

// Inflate 尝试解压入站二进制帧，文本帧和解压失败时原样返回
func Inflate(c Compressor, frameType int, data []byte) []byte {
	if c == nil || frameType != websocket.BinaryMessage {
		return data
	}
	out, err := c.Decompress(data)
	if err != nil {
		return data
	}
	return out
}
