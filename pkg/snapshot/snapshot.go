package snapshot

import (
	"sort"

	"marsarena/pkg/core"

	"github.com/go-gl/mathgl/mgl64"
)

// CharacterSnapshot 单个角色的同步数据。字段为 nil 表示与基线相同
type CharacterSnapshot struct {
	Owner    core.ClientID `json:"owner" msgpack:"owner"`
	Position *mgl64.Vec3   `json:"position,omitempty" msgpack:"position,omitempty"`
	Velocity *mgl64.Vec3   `json:"velocity,omitempty" msgpack:"velocity,omitempty"`
}

// TickSnapshot 一个服务器 tick 的世界状态（完整或差量）
type TickSnapshot struct {
	Tick         uint32              `json:"tick" msgpack:"tick"`
	AckedInputID *uint32             `json:"acked_input_id,omitempty" msgpack:"acked_input_id,omitempty"`
	BaselineTick *uint32             `json:"baseline_tick,omitempty" msgpack:"baseline_tick,omitempty"` // 差量对应的基线，nil 为完整快照
	Characters   []CharacterSnapshot `json:"characters" msgpack:"characters"`
}

// Entry 构建快照所需的角色数据
type Entry struct {
	Owner    core.ClientID
	Position mgl64.Vec3
	Velocity mgl64.Vec3
}

// Build 构建完整快照，角色按 owner 升序
func Build(tick uint32, entries []Entry) TickSnapshot {
	chars := make([]CharacterSnapshot, 0, len(entries))
	for _, e := range entries {
		chars = append(chars, CharacterSnapshot{
			Owner:    e.Owner,
			Position: vecPtr(e.Position),
			Velocity: vecPtr(e.Velocity),
		})
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i].Owner < chars[j].Owner })
	return TickSnapshot{Tick: tick, Characters: chars}
}

// Diff 字段级差量：与 old 相同的字段置为 nil
func (c CharacterSnapshot) Diff(old CharacterSnapshot) CharacterSnapshot {
	return CharacterSnapshot{
		Owner:    c.Owner,
		Position: diffField(c.Position, old.Position),
		Velocity: diffField(c.Velocity, old.Velocity),
	}
}

// Apply 在 old 上应用差量，nil 字段继承 old
func (c CharacterSnapshot) Apply(old CharacterSnapshot) CharacterSnapshot {
	return CharacterSnapshot{
		Owner:    c.Owner,
		Position: orField(c.Position, old.Position),
		Velocity: orField(c.Velocity, old.Velocity),
	}
}

// Clone 深拷贝
func (c CharacterSnapshot) Clone() CharacterSnapshot {
	return CharacterSnapshot{
		Owner:    c.Owner,
		Position: clonePtr(c.Position),
		Velocity: clonePtr(c.Velocity),
	}
}

// Equal 逐字段比较
func (c CharacterSnapshot) Equal(o CharacterSnapshot) bool {
	return c.Owner == o.Owner && ptrEqual(c.Position, o.Position) && ptrEqual(c.Velocity, o.Velocity)
}

// Diff 计算相对 old 的差量快照，BaselineTick 指向 old.Tick。
// old 中不存在的角色以完整形式出现；new 中不存在的角色不出现（接收方据此移除）
func (s TickSnapshot) Diff(old TickSnapshot) TickSnapshot {
	chars := make([]CharacterSnapshot, 0, len(s.Characters))
	for _, nc := range s.Characters {
		if oc, ok := old.Find(nc.Owner); ok {
			chars = append(chars, nc.Diff(oc))
		} else {
			chars = append(chars, nc.Clone())
		}
	}
	baseline := old.Tick
	return TickSnapshot{
		Tick:         s.Tick,
		AckedInputID: clonePtr(s.AckedInputID),
		BaselineTick: &baseline,
		Characters:   chars,
	}
}

// Apply 在基线 old 上还原完整快照。对完整快照直接返回拷贝
func (s TickSnapshot) Apply(old TickSnapshot) TickSnapshot {
	if !s.IsDiff() {
		return s.Clone()
	}
	chars := make([]CharacterSnapshot, 0, len(s.Characters))
	for _, dc := range s.Characters {
		if oc, ok := old.Find(dc.Owner); ok {
			chars = append(chars, dc.Apply(oc))
		} else {
			chars = append(chars, dc.Clone())
		}
	}
	return TickSnapshot{
		Tick:         s.Tick,
		AckedInputID: clonePtr(s.AckedInputID),
		Characters:   chars,
	}
}

// IsDiff 是否为差量快照
func (s TickSnapshot) IsDiff() bool {
	return s.BaselineTick != nil
}

// WithAck 返回带有确认输入序号的拷贝
func (s TickSnapshot) WithAck(ack *uint32) TickSnapshot {
	out := s.Clone()
	out.AckedInputID = clonePtr(ack)
	return out
}

// Find 按 owner 查找角色
func (s TickSnapshot) Find(owner core.ClientID) (CharacterSnapshot, bool) {
	for _, c := range s.Characters {
		if c.Owner == owner {
			return c, true
		}
	}
	return CharacterSnapshot{}, false
}

// Clone 深拷贝
func (s TickSnapshot) Clone() TickSnapshot {
	out := TickSnapshot{
		Tick:         s.Tick,
		AckedInputID: clonePtr(s.AckedInputID),
		BaselineTick: clonePtr(s.BaselineTick),
		Characters:   make([]CharacterSnapshot, len(s.Characters)),
	}
	for i, c := range s.Characters {
		out.Characters[i] = c.Clone()
	}
	return out
}

// Equal 逐字段比较（角色顺序敏感）
func (s TickSnapshot) Equal(o TickSnapshot) bool {
	if s.Tick != o.Tick || !ptrEqual(s.AckedInputID, o.AckedInputID) ||
		!ptrEqual(s.BaselineTick, o.BaselineTick) || len(s.Characters) != len(o.Characters) {
		return false
	}
	for i := range s.Characters {
		if !s.Characters[i].Equal(o.Characters[i]) {
			return false
		}
	}
	return true
}

func diffField(newV, oldV *mgl64.Vec3) *mgl64.Vec3 {
	if ptrEqual(newV, oldV) {
		return nil
	}
	return clonePtr(newV)
}

func orField(v, fallback *mgl64.Vec3) *mgl64.Vec3 {
	if v != nil {
		return clonePtr(v)
	}
	return clonePtr(fallback)
}

func vecPtr(v mgl64.Vec3) *mgl64.Vec3 {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
