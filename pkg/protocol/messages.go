package protocol

import (
	"marsarena/pkg/core"
	"marsarena/pkg/snapshot"
)

// ========== 客户端 -> 服务器 ==========

// ClientMessage 客户端发往服务器的消息
type ClientMessage interface {
	isClientMessage()
}

// Connect 加入游戏（可靠通道）
type Connect struct {
	Username string
}

// Disconnect 主动离开（可靠通道）
type Disconnect struct{}

// PlayerInputs 最近的 1~2 个输入（不可靠通道，冗余发送）
type PlayerInputs struct {
	Inputs []core.PlayerInput
}

// Hello 用会话令牌绑定 UDP 地址
type Hello struct {
	Token string
}

// Pong 回应服务器心跳
type Pong struct {
	ServerTime int64 // 原样返回 Ping 中的时间戳（毫秒）
}

func (Connect) isClientMessage()      {}
func (Disconnect) isClientMessage()   {}
func (PlayerInputs) isClientMessage() {}
func (Hello) isClientMessage()        {}
func (Pong) isClientMessage()         {}

// ========== 服务器 -> 客户端 ==========

// ServerMessage 服务器发往客户端的消息
type ServerMessage interface {
	isServerMessage()
}

// Welcome 连接确认，分配客户端 ID 与 UDP 令牌
type Welcome struct {
	ClientID core.ClientID
	Token    string
	TickRate uint32
	UDPPort  uint32
}

// WeaponConfigList 武器数据
type WeaponConfigList struct {
	Configs []core.WeaponConfig
}

// Snapshot 世界快照（完整或差量）
type Snapshot struct {
	snapshot.TickSnapshot
}

// Despawn 角色移除（客户端断开）
type Despawn struct {
	ClientID core.ClientID
}

// Ping 服务器心跳
type Ping struct {
	ServerTime int64
}

func (Welcome) isServerMessage()          {}
func (WeaponConfigList) isServerMessage() {}
func (Snapshot) isServerMessage()         {}
func (Despawn) isServerMessage()          {}
func (Ping) isServerMessage()             {}

// Channel 传输通道
type Channel int

const (
	ChannelReliable   Channel = iota // 有序可靠流（TCP/KCP）
	ChannelUnreliable                // UDP 数据报
)

func (c Channel) String() string {
	switch c {
	case ChannelReliable:
		return "reliable"
	case ChannelUnreliable:
		return "unreliable"
	default:
		return "unknown"
	}
}

// MaxDatagramSize 单个 UDP 数据报的上限，超过时回退到可靠通道
const MaxDatagramSize = 1200

// ClientChannel 客户端消息使用的通道
func ClientChannel(msg ClientMessage) Channel {
	switch msg.(type) {
	case PlayerInputs, *PlayerInputs, Hello, *Hello:
		return ChannelUnreliable
	default:
		return ChannelReliable
	}
}

// ServerChannel 服务器消息使用的通道：差量快照走不可靠通道，完整快照走可靠通道
func ServerChannel(msg ServerMessage) Channel {
	switch m := msg.(type) {
	case Snapshot:
		if m.IsDiff() {
			return ChannelUnreliable
		}
	case *Snapshot:
		if m.IsDiff() {
			return ChannelUnreliable
		}
	}
	return ChannelReliable
}
