package server

import (
	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
)

// Session 房间眼中的可靠连接
type Session interface {
	ID() core.ClientID
	SendMessage(msg protocol.ServerMessage) error
	Close()
	CloseWithoutNotify()
	SetClientID(id core.ClientID)
	Closed() bool
}
