package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BetaCatPro/ordertrack-ws/internal/errors"
)

// MessageProtocol 消息协议接口
type MessageProtocol interface {
	Name() string
	FrameType() int                         // 发送时使用的帧类型
	Encode(any) ([]byte, error)             // 编码消息
	Decode([]byte) (*structpb.Value, error) // 解码为结构化内容
}

// JSONProtocol JSON协议实现
type JSONProtocol struct{}

func (JSONProtocol) Name() string { return "json" }

func (JSONProtocol) FrameType() int { return websocket.TextMessage }

// Encode 编码为JSON
func (JSONProtocol) Encode(data any) ([]byte, error) {
	if v, ok := data.(proto.Message); ok {
		return protojson.Marshal(v)
	}
	return json.Marshal(data)
}

// Decode 从JSON解码，任何合法JSON值（对象、数组、标量）都会被接受；
// 重复键取最后一个，孤立代理项替换为 U+FFFD
func (JSONProtocol) Decode(bytes []byte) (*structpb.Value, error) {
	var raw any
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	v, err := structpb.NewValue(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return v, nil
}

// ProtobufProtocol Protobuf协议实现，负载为 google.protobuf.Value
type ProtobufProtocol struct{}

func (ProtobufProtocol) Name() string { return "protobuf" }

func (ProtobufProtocol) FrameType() int { return websocket.BinaryMessage }

// Encode 编码为Protobuf
func (ProtobufProtocol) Encode(data any) ([]byte, error) {
	if msg, ok := data.(proto.Message); ok {
		return proto.Marshal(msg)
	}
	v, err := structpb.NewValue(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return proto.Marshal(v)
}

// Decode 从Protobuf解码
func (ProtobufProtocol) Decode(bytes []byte) (*structpb.Value, error) {
	v := &structpb.Value{}
	if err := proto.Unmarshal(bytes, v); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return v, nil
}

// GetProtocol 根据名称获取协议处理器
func GetProtocol(name string) (MessageProtocol, error) {
	switch name {
	case "", "json":
		return JSONProtocol{}, nil
	case "protobuf":
		return ProtobufProtocol{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownCodec, name)
	}
}
