package client

import (
	"log"
	"sort"
	"sync"
	"time"

	"marsarena/internal/config"
	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
	"marsarena/pkg/snapshot"

	"github.com/go-gl/mathgl/mgl64"
)

// InputSender 把最新的输入发往服务器（不可靠通道）
type InputSender interface {
	SendInputs(inputs []core.PlayerInput) error
}

// Predictor 客户端预测与服务器和解。
// Tick 在单个 goroutine 中以固定频率调用；网络层只往 inbox 投递消息
type Predictor struct {
	mu sync.Mutex

	cfg       config.Config
	world     core.World
	constants core.CharacterConstants
	dt        float64

	localID    core.ClientID
	characters map[core.ClientID]*core.Character
	weapons    []core.WeaponConfig

	history     *InputHistory
	snapshots   *snapshot.History
	lastApplied *uint32
	nextInputID uint32

	metrics *NetworkMetrics
	inbox   <-chan protocol.ServerMessage
	out     InputSender
}

// NewPredictor 本地角色在 spawn 处立即生成，等待第一个快照校正
func NewPredictor(cfg config.Config, world core.World, localID core.ClientID, spawn mgl64.Vec3,
	inbox <-chan protocol.ServerMessage, out InputSender) *Predictor {
	constants := cfg.Constants()
	p := &Predictor{
		cfg:        cfg,
		world:      world,
		constants:  constants,
		dt:         cfg.DeltaSeconds(),
		localID:    localID,
		characters: make(map[core.ClientID]*core.Character),
		history:    NewInputHistory(),
		snapshots:  snapshot.NewHistoryForDuration(cfg.SnapshotWindow(), cfg.TickRateHz),
		metrics:    NewNetworkMetrics(cfg.MetricsInterval()),
		inbox:      inbox,
		out:        out,
	}
	p.characters[localID] = core.NewCharacter(localID, spawn, constants)
	return p
}

// Tick 一个固定步：处理收到的消息，预测本地输入，发送最新输入
func (p *Predictor) Tick(controls core.Controls) {
	p.mu.Lock()
	p.drainInboxLocked()

	in := core.PlayerInput{
		ID:            p.nextInputID,
		ServerTickAck: cloneU32(p.lastApplied),
		Controls:      controls,
	}
	p.nextInputID++

	local := p.characters[p.localID]
	core.Advance(p.world, in.WishDir(), in.Jump, &local.State, &local.Position, local.Constants, p.dt)
	in.FinalPosition = local.Position
	p.history.Append(in)

	if keep := p.cfg.HistoryTicks(); p.nextInputID > keep {
		p.history.PruneBefore(p.nextInputID - keep)
	}
	p.smoothLocked(p.dt)

	pending := p.history.Latest(p.cfg.Input.RedundantSends)
	p.mu.Unlock()

	p.metrics.MaybeLog(time.Now())

	if p.out == nil || len(pending) == 0 {
		return
	}
	if err := p.out.SendInputs(pending); err != nil {
		log.Printf("发送输入失败: %v", err)
	}
}

func (p *Predictor) drainInboxLocked() {
	if p.inbox == nil {
		return
	}
	for {
		select {
		case msg, ok := <-p.inbox:
			if !ok {
				p.inbox = nil
				return
			}
			p.handleMessageLocked(msg)
		default:
			return
		}
	}
}

func (p *Predictor) handleMessageLocked(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.Snapshot:
		p.applySnapshotLocked(m.TickSnapshot)
	case *protocol.Snapshot:
		p.applySnapshotLocked(m.TickSnapshot)
	case protocol.Despawn:
		p.despawnLocked(m.ClientID)
	case *protocol.Despawn:
		p.despawnLocked(m.ClientID)
	case protocol.WeaponConfigList:
		p.weapons = append([]core.WeaponConfig(nil), m.Configs...)
	case *protocol.WeaponConfigList:
		p.weapons = append([]core.WeaponConfig(nil), m.Configs...)
	}
}

// ApplySnapshot 应用一个服务器快照（完整或差量）
func (p *Predictor) ApplySnapshot(s snapshot.TickSnapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applySnapshotLocked(s)
}

func (p *Predictor) applySnapshotLocked(s snapshot.TickSnapshot) bool {
	if p.lastApplied != nil && s.Tick <= *p.lastApplied {
		return false
	}

	var full snapshot.TickSnapshot
	if s.IsDiff() {
		base, ok := p.snapshots.Find(*s.BaselineTick)
		if !ok {
			return false
		}
		full = s.Apply(base)
	} else {
		full = s.Clone()
	}
	p.snapshots.Push(full)
	tick := full.Tick
	p.lastApplied = &tick

	present := make(map[core.ClientID]bool, len(full.Characters))
	for _, cs := range full.Characters {
		present[cs.Owner] = true
		if cs.Owner == p.localID {
			p.reconcileLocked(p.characters[p.localID], cs, full.AckedInputID)
			continue
		}
		p.applyRemoteLocked(cs)
	}
	for id := range p.characters {
		if id != p.localID && !present[id] {
			delete(p.characters, id)
		}
	}
	return true
}

// reconcileLocked 回到权威状态后重放未确认的输入，纠错量转为视觉偏移
func (p *Predictor) reconcileLocked(c *core.Character, cs snapshot.CharacterSnapshot, ack *uint32) {
	before := c.RenderPosition()

	if ack != nil && cs.Position != nil {
		if in, ok := p.history.Get(*ack); ok {
			p.metrics.Record(in.FinalPosition.Sub(*cs.Position).Len())
		}
	}

	if cs.Position != nil {
		c.Position = *cs.Position
	}
	if cs.Velocity != nil {
		c.State.Velocity = *cs.Velocity
		// 快照不带起跳标记；贴地移动不会产生向上的速度
		c.State.Jumping = c.State.Velocity[1] > 0
	}
	for _, in := range p.history.After(ack) {
		core.Advance(p.world, in.WishDir(), in.Jump, &c.State, &c.Position, c.Constants, p.dt)
		p.history.UpdateFinal(in.ID, c.Position)
	}

	c.State.VisualOffset = clampOffset(before.Sub(c.Position), p.cfg.Smoothing.MaxOffset)
}

func (p *Predictor) applyRemoteLocked(cs snapshot.CharacterSnapshot) {
	c, ok := p.characters[cs.Owner]
	if !ok {
		if cs.Position == nil {
			return
		}
		c = core.NewCharacter(cs.Owner, *cs.Position, p.constants)
		p.characters[cs.Owner] = c
	}
	before := c.RenderPosition()
	if cs.Position != nil {
		c.Position = *cs.Position
	}
	if cs.Velocity != nil {
		c.State.Velocity = *cs.Velocity
	}
	if ok {
		c.State.VisualOffset = clampOffset(before.Sub(c.Position), p.cfg.Smoothing.MaxOffset)
	}
}

func (p *Predictor) despawnLocked(id core.ClientID) {
	if id == p.localID {
		return
	}
	delete(p.characters, id)
}

// Smooth 按 CorrectionSpeed 衰减所有角色的视觉偏移
func (p *Predictor) Smooth(frameDt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.smoothLocked(frameDt)
}

func (p *Predictor) smoothLocked(frameDt float64) {
	step := p.cfg.Smoothing.CorrectionSpeed * frameDt
	for _, c := range p.characters {
		c.State.VisualOffset = core.MoveTowards(c.State.VisualOffset, mgl64.Vec3{}, step)
	}
}

// clampOffset 限制偏移长度，过大的纠错直接瞬移
func clampOffset(offset mgl64.Vec3, max float64) mgl64.Vec3 {
	l := offset.Len()
	if l <= max || l == 0 {
		return offset
	}
	if max <= 0 {
		return mgl64.Vec3{}
	}
	return offset.Mul(max / l)
}

// Characters 所有角色的拷贝，按 owner 升序
func (p *Predictor) Characters() []core.Character {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Character, 0, len(p.characters))
	for _, c := range p.characters {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State.Owner < out[j].State.Owner })
	return out
}

// Local 本地角色的拷贝
func (p *Predictor) Local() core.Character {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.characters[p.localID]
}

func (p *Predictor) LocalID() core.ClientID {
	return p.localID
}

// LastAppliedTick 最近应用的快照 tick
func (p *Predictor) LastAppliedTick() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastApplied == nil {
		return 0, false
	}
	return *p.lastApplied, true
}

// Weapons 服务器下发的武器配置
func (p *Predictor) Weapons() []core.WeaponConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.WeaponConfig(nil), p.weapons...)
}

func (p *Predictor) PendingInputs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.Len()
}

func (p *Predictor) Metrics() *NetworkMetrics {
	return p.metrics
}

func cloneU32(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
