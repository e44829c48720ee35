package server

import (
	"fmt"

	"marsarena/pkg/protocol"
)

// DecodePacket 解析服务器收到的数据包
func DecodePacket(data []byte) (*ServerEvent, error) {
	msg, err := protocol.UnmarshalClient(data)
	if err != nil {
		return nil, fmt.Errorf("解析包失败: %w", err)
	}

	switch m := msg.(type) {
	case protocol.Connect:
		return &ServerEvent{
			Kind:    EventConnect,
			Connect: &ConnectEvent{Username: m.Username},
		}, nil

	case protocol.Disconnect:
		return &ServerEvent{Kind: EventDisconnect}, nil

	case protocol.PlayerInputs:
		return &ServerEvent{
			Kind:   EventInputs,
			Inputs: &InputsEvent{Inputs: m.Inputs},
		}, nil

	case protocol.Hello:
		return &ServerEvent{
			Kind:  EventHello,
			Hello: &HelloEvent{Token: m.Token},
		}, nil

	case protocol.Pong:
		return &ServerEvent{
			Kind: EventPong,
			Pong: &PongEvent{ServerTime: m.ServerTime},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %T", protocol.ErrUnknownMessage, msg)
	}
}

// EncodeMessage 序列化服务器消息
func EncodeMessage(msg protocol.ServerMessage) ([]byte, error) {
	data, err := protocol.MarshalServer(msg)
	if err != nil {
		return nil, fmt.Errorf("序列化 %T 失败: %w", msg, err)
	}
	return data, nil
}
