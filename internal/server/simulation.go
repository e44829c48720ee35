package server

import (
	"log"
	"sort"
	"time"

	"marsarena/internal/config"
	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
	"marsarena/pkg/snapshot"

	"github.com/go-gl/mathgl/mgl64"
)

// ClientInfo 服务器为每个客户端维护的同步状态
type ClientInfo struct {
	LastProcessedInputID *uint32 // nil 表示尚未处理过任何输入
	LastAckedTick        *uint32 // 客户端确认过的最大快照 tick
	Buffer               *InputBuffer
	Primed               bool // 缓冲首次达到下限后一直为 true
	LastInput            *core.PlayerInput
}

// ClientEntry 注册表中的一个客户端
type ClientEntry struct {
	ID        core.ClientID
	Username  string
	Character *core.Character
	Info      ClientInfo
	Weapon    core.WeaponState
}

// Outbox 按客户端投递服务器消息
type Outbox interface {
	Send(id core.ClientID, msg protocol.ServerMessage)
}

// TickReport 一次 Step 的结果
type TickReport struct {
	Tick     uint32
	Snapshot snapshot.TickSnapshot // 完整快照
	Fires    []core.FireEvent
}

// SimulationContext 权威模拟：客户端注册表、输入缓冲、快照历史
// 只由房间 goroutine 访问
type SimulationContext struct {
	cfg          config.Config
	world        core.World
	constants    core.CharacterConstants
	dt           float64
	tickDuration time.Duration
	spawn        mgl64.Vec3

	tick    uint32
	elapsed time.Duration

	clients map[core.ClientID]*ClientEntry
	order   []core.ClientID // 升序，保证遍历顺序确定

	history *snapshot.History
}

// NewSimulation 创建模拟上下文
func NewSimulation(cfg config.Config, world core.World, spawn mgl64.Vec3) *SimulationContext {
	return &SimulationContext{
		cfg:          cfg,
		world:        world,
		constants:    cfg.Constants(),
		dt:           cfg.DeltaSeconds(),
		tickDuration: cfg.TickDuration(),
		spawn:        spawn,
		clients:      make(map[core.ClientID]*ClientEntry),
		history:      snapshot.NewHistoryForDuration(cfg.SnapshotWindow(), cfg.TickRateHz),
	}
}

// Tick 最近一次完成的 tick
func (s *SimulationContext) Tick() uint32 {
	return s.tick
}

// Elapsed 模拟时间
func (s *SimulationContext) Elapsed() time.Duration {
	return s.elapsed
}

// History 已发送的完整快照
func (s *SimulationContext) History() *snapshot.History {
	return s.history
}

// Len 已注册的客户端数
func (s *SimulationContext) Len() int {
	return len(s.clients)
}

// Entry 查找客户端
func (s *SimulationContext) Entry(id core.ClientID) (*ClientEntry, bool) {
	e, ok := s.clients[id]
	return e, ok
}

// IDs 按升序返回所有客户端 id
func (s *SimulationContext) IDs() []core.ClientID {
	out := make([]core.ClientID, len(s.order))
	copy(out, s.order)
	return out
}

// HandleConnect 注册客户端并在出生点生成角色。已存在时返回原条目
func (s *SimulationContext) HandleConnect(id core.ClientID, username string) *ClientEntry {
	if e, ok := s.clients[id]; ok {
		if username != "" {
			e.Username = username
		}
		return e
	}

	e := &ClientEntry{
		ID:        id,
		Username:  username,
		Character: core.NewCharacter(id, s.spawn, s.constants),
		Info: ClientInfo{
			Buffer: NewInputBuffer(s.cfg.Input.BufferMax),
		},
	}
	if w, ok := core.FindWeapon(s.cfg.Weapons, s.cfg.DefaultWeapon); ok {
		e.Weapon = core.NewWeaponState(w)
	}
	s.clients[id] = e

	pos := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	s.order = append(s.order, 0)
	copy(s.order[pos+1:], s.order[pos:])
	s.order[pos] = id

	log.Printf("客户端 %d (%s) 生成于 (%.2f, %.2f, %.2f)", id, username, s.spawn.X(), s.spawn.Y(), s.spawn.Z())
	return e
}

// HandleDisconnect 移除客户端并向其余客户端广播 Despawn
func (s *SimulationContext) HandleDisconnect(id core.ClientID, out Outbox) bool {
	if _, ok := s.clients[id]; !ok {
		return false
	}
	delete(s.clients, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if out != nil {
		for _, other := range s.order {
			out.Send(other, protocol.Despawn{ClientID: id})
		}
	}
	log.Printf("客户端 %d 离开，剩余 %d", id, len(s.clients))
	return true
}

// HandleInputs 接收一批输入：已处理过的 id 直接丢弃，其余按序进入缓冲
// 未注册的客户端会被自动注册
func (s *SimulationContext) HandleInputs(id core.ClientID, inputs []core.PlayerInput) {
	e, ok := s.clients[id]
	if !ok {
		e = s.HandleConnect(id, "")
	}
	info := &e.Info
	for _, in := range inputs {
		if in.ServerTickAck != nil && (info.LastAckedTick == nil || *in.ServerTickAck > *info.LastAckedTick) {
			ack := *in.ServerTickAck
			info.LastAckedTick = &ack
		}
		if info.LastProcessedInputID != nil && in.ID <= *info.LastProcessedInputID {
			continue
		}
		info.Buffer.Insert(in)
	}
}

// ConsumeInputs 推进所有已就绪客户端一个 tick
func (s *SimulationContext) ConsumeInputs() []core.FireEvent {
	var fires []core.FireEvent
	for _, id := range s.order {
		e := s.clients[id]
		info := &e.Info

		if !info.Primed {
			if info.Buffer.Len() < s.cfg.Input.BufferMin {
				continue
			}
			info.Primed = true
		}

		inputs := info.Buffer.Drain()
		if len(inputs) == 0 {
			// 缓冲为空：沿用上一个输入的移动，不开火，也不推进 id
			var in core.PlayerInput
			if info.LastInput != nil {
				in = info.LastInput.WithoutFire()
			}
			s.applyInput(e, in, s.dt, s.elapsed, &fires)
			continue
		}

		sub := s.dt / float64(len(inputs))
		subDur := s.tickDuration / time.Duration(len(inputs))
		for i, in := range inputs {
			s.applyInput(e, in, sub, s.elapsed+time.Duration(i)*subDur, &fires)
			id := in.ID
			info.LastProcessedInputID = &id
			last := in
			info.LastInput = &last
		}
	}
	return fires
}

func (s *SimulationContext) applyInput(e *ClientEntry, in core.PlayerInput, dt float64, now time.Duration, fires *[]core.FireEvent) {
	ch := e.Character
	core.Advance(s.world, in.WishDir(), in.Jump, &ch.State, &ch.Position, ch.Constants, dt)

	if !in.Fire {
		return
	}
	cfg, ok := core.FindWeapon(s.cfg.Weapons, e.Weapon.ConfigTag)
	if !ok || !e.Weapon.CanFire(now) {
		return
	}
	ammo := e.Weapon.Ammo
	if cfg.MagazineSize > 0 && ammo > 0 {
		ammo--
	}
	e.Weapon.OnFire(now, cfg)
	*fires = append(*fires, core.FireEvent{
		Tick:    s.tick,
		Owner:   e.ID,
		Weapon:  cfg.Tag,
		Damage:  cfg.Damage,
		Yaw:     in.Yaw,
		Pitch:   in.Pitch,
		AmmoRem: ammo,
	})
}

// BuildSnapshot 当前所有角色的完整快照
func (s *SimulationContext) BuildSnapshot() snapshot.TickSnapshot {
	entries := make([]snapshot.Entry, 0, len(s.order))
	for _, id := range s.order {
		ch := s.clients[id].Character
		entries = append(entries, snapshot.Entry{
			Owner:    id,
			Position: ch.Position,
			Velocity: ch.State.Velocity,
		})
	}
	return snapshot.Build(s.tick, entries)
}

// Step 推进一个 tick：消耗输入、构建快照并存入历史
func (s *SimulationContext) Step() TickReport {
	s.tick++
	fires := s.ConsumeInputs()
	s.elapsed += s.tickDuration

	snap := s.BuildSnapshot()
	s.history.Push(snap)
	return TickReport{Tick: s.tick, Snapshot: snap, Fires: fires}
}

// SnapshotFor 按客户端确认的 tick 生成差量（基线不在历史中则发完整快照），并附带已处理的输入 id
func (s *SimulationContext) SnapshotFor(id core.ClientID, full snapshot.TickSnapshot) (snapshot.TickSnapshot, bool) {
	e, ok := s.clients[id]
	if !ok {
		return snapshot.TickSnapshot{}, false
	}
	msg := full
	if ack := e.Info.LastAckedTick; ack != nil && *ack < full.Tick {
		if base, found := s.history.Find(*ack); found {
			msg = full.Diff(base)
		}
	}
	return msg.WithAck(e.Info.LastProcessedInputID), true
}

// BroadcastSnapshots 向每个客户端发送其专属的快照
func (s *SimulationContext) BroadcastSnapshots(full snapshot.TickSnapshot, out Outbox) {
	for _, id := range s.order {
		msg, ok := s.SnapshotFor(id, full)
		if !ok {
			continue
		}
		out.Send(id, protocol.Snapshot{TickSnapshot: msg})
	}
}
