package server

import "marsarena/pkg/core"

type EventKind int

const (
	EventUnknown EventKind = iota
	EventConnect
	EventDisconnect
	EventInputs
	EventHello
	EventPong
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventInputs:
		return "inputs"
	case EventHello:
		return "hello"
	case EventPong:
		return "pong"
	default:
		return "unknown"
	}
}

type ConnectEvent struct {
	Username string
}

type InputsEvent struct {
	ClientID core.ClientID // 由传输层填入，不信任客户端
	Inputs   []core.PlayerInput
}

type HelloEvent struct {
	Token string
}

type PongEvent struct {
	ServerTime int64
}

// ServerEvent 解码后的客户端消息
type ServerEvent struct {
	Kind    EventKind
	Connect *ConnectEvent
	Inputs  *InputsEvent
	Hello   *HelloEvent
	Pong    *PongEvent
}
