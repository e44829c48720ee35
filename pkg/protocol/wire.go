package protocol

import (
	"errors"
	"fmt"
	"math"

	"marsarena/pkg/core"
	"marsarena/pkg/snapshot"

	"github.com/go-gl/mathgl/mgl64"
	"google.golang.org/protobuf/encoding/protowire"
)

// 字段编号与 api/proto/arena/v1/arena.proto 保持一致

var (
	ErrUnknownMessage = errors.New("未知消息类型")
	ErrTruncated      = errors.New("消息被截断或格式错误")
	ErrEmptyMessage   = errors.New("空消息")
)

// ========== 编码 ==========

// MarshalClient 编码客户端消息（ClientEnvelope）
func MarshalClient(msg ClientMessage) ([]byte, error) {
	var b []byte
	switch m := msg.(type) {
	case Connect:
		b = appendMessage(b, 1, appendString(nil, 1, m.Username))
	case Disconnect:
		b = appendMessage(b, 2, nil)
	case PlayerInputs:
		var body []byte
		for _, in := range m.Inputs {
			body = appendMessage(body, 1, appendPlayerInput(nil, in))
		}
		b = appendMessage(b, 3, body)
	case Hello:
		b = appendMessage(b, 4, appendString(nil, 1, m.Token))
	case Pong:
		b = appendMessage(b, 5, appendVarint(nil, 1, uint64(m.ServerTime)))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return b, nil
}

// MarshalServer 编码服务器消息（ServerEnvelope）
func MarshalServer(msg ServerMessage) ([]byte, error) {
	var b []byte
	switch m := msg.(type) {
	case Welcome:
		var body []byte
		body = appendVarint(body, 1, uint64(m.ClientID))
		body = appendString(body, 2, m.Token)
		body = appendVarint(body, 3, uint64(m.TickRate))
		body = appendVarint(body, 4, uint64(m.UDPPort))
		b = appendMessage(b, 1, body)
	case WeaponConfigList:
		var body []byte
		for _, c := range m.Configs {
			body = appendMessage(body, 1, appendWeaponConfig(nil, c))
		}
		b = appendMessage(b, 2, body)
	case Snapshot:
		b = appendMessage(b, 3, appendTickSnapshot(nil, m.TickSnapshot))
	case Despawn:
		b = appendMessage(b, 4, appendVarint(nil, 1, uint64(m.ClientID)))
	case Ping:
		b = appendMessage(b, 5, appendVarint(nil, 1, uint64(m.ServerTime)))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return b, nil
}

func appendTag(b []byte, num protowire.Number, typ protowire.Type) []byte {
	return protowire.AppendTag(b, num, typ)
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = appendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = appendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = appendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	b = appendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendVec3(b []byte, num protowire.Number, v mgl64.Vec3) []byte {
	var body []byte
	body = appendDouble(body, 1, v[0])
	body = appendDouble(body, 2, v[1])
	body = appendDouble(body, 3, v[2])
	return appendMessage(b, num, body)
}

func appendPlayerInput(b []byte, in core.PlayerInput) []byte {
	b = appendVarint(b, 1, uint64(in.ID))
	if in.ServerTickAck != nil {
		// optional 字段：显式写出 0
		b = appendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*in.ServerTickAck))
	}
	b = appendBool(b, 3, in.MoveForward)
	b = appendBool(b, 4, in.MoveBackward)
	b = appendBool(b, 5, in.MoveLeft)
	b = appendBool(b, 6, in.MoveRight)
	b = appendBool(b, 7, in.Jump)
	b = appendBool(b, 8, in.Fire)
	b = appendDouble(b, 9, in.Yaw)
	b = appendDouble(b, 10, in.Pitch)
	b = appendVec3(b, 11, in.FinalPosition)
	return b
}

func appendWeaponConfig(b []byte, c core.WeaponConfig) []byte {
	b = appendString(b, 1, c.Tag)
	b = appendString(b, 2, c.Name)
	b = appendVarint(b, 3, uint64(c.FireRateMs))
	b = appendVarint(b, 4, uint64(c.Damage))
	b = appendVarint(b, 5, uint64(c.MagazineSize))
	b = appendVarint(b, 6, uint64(c.ReloadMs))
	return b
}

func appendCharacterSnapshot(b []byte, c snapshot.CharacterSnapshot) []byte {
	b = appendVarint(b, 1, uint64(c.Owner))
	if c.Position != nil {
		b = appendVec3(b, 2, *c.Position)
	}
	if c.Velocity != nil {
		b = appendVec3(b, 3, *c.Velocity)
	}
	return b
}

func appendTickSnapshot(b []byte, s snapshot.TickSnapshot) []byte {
	b = appendVarint(b, 1, uint64(s.Tick))
	if s.AckedInputID != nil {
		b = appendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*s.AckedInputID))
	}
	if s.BaselineTick != nil {
		b = appendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*s.BaselineTick))
	}
	for _, c := range s.Characters {
		b = appendMessage(b, 4, appendCharacterSnapshot(nil, c))
	}
	return b
}

// ========== 解码 ==========

// fieldFunc 处理一个字段，返回消耗的字节数；返回 0 表示未知字段（跳过），负数为解析错误
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func parseErr(n int) error {
	return fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
}

func walkFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseErr(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return parseErr(m)
		}
		b = b[m:]
	}
	return nil
}

// 以下 consume* 在类型不匹配时返回 0，使字段被当作未知字段跳过

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = v
	}
	return n
}

func consumeUint32(typ protowire.Type, b []byte, dst *uint32) int {
	var v uint64
	n := consumeVarint(typ, b, &v)
	if n > 0 {
		*dst = uint32(v)
	}
	return n
}

func consumeOptionalUint32(typ protowire.Type, b []byte, dst **uint32) int {
	var v uint32
	n := consumeUint32(typ, b, &v)
	if n > 0 {
		*dst = &v
	}
	return n
}

func consumeBool(typ protowire.Type, b []byte, dst *bool) int {
	var v uint64
	n := consumeVarint(typ, b, &v)
	if n > 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n
}

func consumeDouble(typ protowire.Type, b []byte, dst *float64) int {
	if typ != protowire.Fixed64Type {
		return 0
	}
	v, n := protowire.ConsumeFixed64(b)
	if n > 0 {
		*dst = math.Float64frombits(v)
	}
	return n
}

func consumeString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(b)
	if n > 0 {
		*dst = v
	}
	return n
}

// consumeMessage 取出嵌套消息并交给 parse；parse 出错时返回负数
func consumeMessage(typ protowire.Type, b []byte, parse func([]byte) error, errOut *error) int {
	if typ != protowire.BytesType {
		return 0
	}
	body, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if err := parse(body); err != nil {
		*errOut = err
		return -1
	}
	return n
}

func walkWithNested(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int) error {
	var nested error
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		return fn(num, typ, b, &nested)
	})
	if nested != nil {
		return nested
	}
	return err
}

func parseVec3(b []byte) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num >= 1 && num <= 3 {
			return consumeDouble(typ, b, &v[num-1])
		}
		return 0
	})
	return v, err
}

func parsePlayerInput(b []byte) (core.PlayerInput, error) {
	var in core.PlayerInput
	err := walkWithNested(b, func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int {
		switch num {
		case 1:
			return consumeUint32(typ, b, &in.ID)
		case 2:
			return consumeOptionalUint32(typ, b, &in.ServerTickAck)
		case 3:
			return consumeBool(typ, b, &in.MoveForward)
		case 4:
			return consumeBool(typ, b, &in.MoveBackward)
		case 5:
			return consumeBool(typ, b, &in.MoveLeft)
		case 6:
			return consumeBool(typ, b, &in.MoveRight)
		case 7:
			return consumeBool(typ, b, &in.Jump)
		case 8:
			return consumeBool(typ, b, &in.Fire)
		case 9:
			return consumeDouble(typ, b, &in.Yaw)
		case 10:
			return consumeDouble(typ, b, &in.Pitch)
		case 11:
			return consumeMessage(typ, b, func(body []byte) (err error) {
				in.FinalPosition, err = parseVec3(body)
				return err
			}, nested)
		}
		return 0
	})
	return in, err
}

func parseWeaponConfig(b []byte) (core.WeaponConfig, error) {
	var c core.WeaponConfig
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &c.Tag)
		case 2:
			return consumeString(typ, b, &c.Name)
		case 3:
			return consumeUint32(typ, b, &c.FireRateMs)
		case 4:
			return consumeUint32(typ, b, &c.Damage)
		case 5:
			return consumeUint32(typ, b, &c.MagazineSize)
		case 6:
			return consumeUint32(typ, b, &c.ReloadMs)
		}
		return 0
	})
	return c, err
}

func parseCharacterSnapshot(b []byte) (snapshot.CharacterSnapshot, error) {
	var c snapshot.CharacterSnapshot
	err := walkWithNested(b, func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int {
		switch num {
		case 1:
			var v uint64
			n := consumeVarint(typ, b, &v)
			c.Owner = core.ClientID(v)
			return n
		case 2, 3:
			return consumeMessage(typ, b, func(body []byte) error {
				v, err := parseVec3(body)
				if err != nil {
					return err
				}
				if num == 2 {
					c.Position = &v
				} else {
					c.Velocity = &v
				}
				return nil
			}, nested)
		}
		return 0
	})
	return c, err
}

func parseTickSnapshot(b []byte) (snapshot.TickSnapshot, error) {
	var s snapshot.TickSnapshot
	err := walkWithNested(b, func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int {
		switch num {
		case 1:
			return consumeUint32(typ, b, &s.Tick)
		case 2:
			return consumeOptionalUint32(typ, b, &s.AckedInputID)
		case 3:
			return consumeOptionalUint32(typ, b, &s.BaselineTick)
		case 4:
			return consumeMessage(typ, b, func(body []byte) error {
				c, err := parseCharacterSnapshot(body)
				if err != nil {
					return err
				}
				s.Characters = append(s.Characters, c)
				return nil
			}, nested)
		}
		return 0
	})
	if s.Characters == nil {
		s.Characters = []snapshot.CharacterSnapshot{}
	}
	return s, err
}

// UnmarshalClient 解码客户端消息
func UnmarshalClient(data []byte) (ClientMessage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	var msg ClientMessage
	err := walkWithNested(data, func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int {
		return consumeMessage(typ, b, func(body []byte) error {
			switch num {
			case 1:
				var c Connect
				err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) int {
					if num == 1 {
						return consumeString(typ, b, &c.Username)
					}
					return 0
				})
				msg = c
				return err
			case 2:
				msg = Disconnect{}
				return nil
			case 3:
				var p PlayerInputs
				err := walkWithNested(body, func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int {
					if num != 1 {
						return 0
					}
					return consumeMessage(typ, b, func(body []byte) error {
						in, err := parsePlayerInput(body)
						if err != nil {
							return err
						}
						p.Inputs = append(p.Inputs, in)
						return nil
					}, nested)
				})
				msg = p
				return err
			case 4:
				var h Hello
				err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) int {
					if num == 1 {
						return consumeString(typ, b, &h.Token)
					}
					return 0
				})
				msg = h
				return err
			case 5:
				var p Pong
				err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) int {
					if num == 1 {
						var v uint64
						n := consumeVarint(typ, b, &v)
						p.ServerTime = int64(v)
						return n
					}
					return 0
				})
				msg = p
				return err
			}
			return nil
		}, nested)
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	return msg, nil
}

// UnmarshalServer 解码服务器消息
func UnmarshalServer(data []byte) (ServerMessage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	var msg ServerMessage
	err := walkWithNested(data, func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int {
		return consumeMessage(typ, b, func(body []byte) error {
			switch num {
			case 1:
				var w Welcome
				err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) int {
					switch num {
					case 1:
						var v uint64
						n := consumeVarint(typ, b, &v)
						w.ClientID = core.ClientID(v)
						return n
					case 2:
						return consumeString(typ, b, &w.Token)
					case 3:
						return consumeUint32(typ, b, &w.TickRate)
					case 4:
						return consumeUint32(typ, b, &w.UDPPort)
					}
					return 0
				})
				msg = w
				return err
			case 2:
				var l WeaponConfigList
				err := walkWithNested(body, func(num protowire.Number, typ protowire.Type, b []byte, nested *error) int {
					if num != 1 {
						return 0
					}
					return consumeMessage(typ, b, func(body []byte) error {
						c, err := parseWeaponConfig(body)
						if err != nil {
							return err
						}
						l.Configs = append(l.Configs, c)
						return nil
					}, nested)
				})
				msg = l
				return err
			case 3:
				s, err := parseTickSnapshot(body)
				msg = Snapshot{TickSnapshot: s}
				return err
			case 4:
				var d Despawn
				err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) int {
					if num == 1 {
						var v uint64
						n := consumeVarint(typ, b, &v)
						d.ClientID = core.ClientID(v)
						return n
					}
					return 0
				})
				msg = d
				return err
			case 5:
				var p Ping
				err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) int {
					if num == 1 {
						var v uint64
						n := consumeVarint(typ, b, &v)
						p.ServerTime = int64(v)
						return n
					}
					return 0
				})
				msg = p
				return err
			}
			return nil
		}, nested)
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrUnknownMessage
	}
	return msg, nil
}
