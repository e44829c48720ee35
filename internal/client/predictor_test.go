package client

import (
	"testing"
	"time"

	"marsarena/internal/config"
	"marsarena/internal/server"
	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
	"marsarena/pkg/snapshot"

	"github.com/go-gl/mathgl/mgl64"
)

func testWorld() *core.StaticWorld {
	return core.NewStaticWorld(core.NewBox(mgl64.Vec3{0, -0.5, 0}, mgl64.Vec3{100, 1, 100}))
}

func testSpawn() mgl64.Vec3 {
	return mgl64.Vec3{0, core.DefaultCharacterRadius + core.SkinWidth, 0}
}

type recordingSender struct {
	batches [][]core.PlayerInput
}

func (s *recordingSender) SendInputs(inputs []core.PlayerInput) error {
	s.batches = append(s.batches, inputs)
	return nil
}

// 带固定延迟的回环：客户端输入和服务器快照都延后 delay 个 tick 送达
type loopback struct {
	sim   *server.SimulationContext
	id    core.ClientID
	delay int
	now   int
	inbox chan protocol.ServerMessage

	inputs []delayed[[]core.PlayerInput]
	snaps  []delayed[protocol.ServerMessage]
}

type delayed[T any] struct {
	at int
	v  T
}

func (l *loopback) SendInputs(inputs []core.PlayerInput) error {
	cp := append([]core.PlayerInput(nil), inputs...)
	l.inputs = append(l.inputs, delayed[[]core.PlayerInput]{at: l.now + l.delay, v: cp})
	return nil
}

func (l *loopback) Send(id core.ClientID, msg protocol.ServerMessage) {
	if id != l.id {
		return
	}
	l.snaps = append(l.snaps, delayed[protocol.ServerMessage]{at: l.now + l.delay, v: msg})
}

func (l *loopback) step() {
	for len(l.inputs) > 0 && l.inputs[0].at <= l.now {
		l.sim.HandleInputs(l.id, l.inputs[0].v)
		l.inputs = l.inputs[1:]
	}
	report := l.sim.Step()
	l.sim.BroadcastSnapshots(report.Snapshot, l)
	for len(l.snaps) > 0 && l.snaps[0].at <= l.now {
		l.inbox <- l.snaps[0].v
		l.snaps = l.snaps[1:]
	}
	l.now++
}

func newLoopback(delay int) (*loopback, *Predictor, config.Config) {
	cfg := config.Defaults()
	cfg.Input.BufferMin = 0
	return newLoopbackWith(cfg, delay)
}

func newLoopbackWith(cfg config.Config, delay int) (*loopback, *Predictor, config.Config) {
	l := &loopback{
		sim:   server.NewSimulation(cfg, testWorld(), testSpawn()),
		id:    1,
		delay: delay,
		inbox: make(chan protocol.ServerMessage, 1024),
	}
	l.sim.HandleConnect(l.id, "ares")
	p := NewPredictor(cfg, testWorld(), l.id, testSpawn(), l.inbox, l)
	return l, p, cfg
}

func TestPredictionMatchesServerWithoutLatency(t *testing.T) {
	l, p, _ := newLoopback(0)

	for i := 0; i < 200; i++ {
		c := core.Controls{Yaw: float64(i) * 0.02}
		switch {
		case i < 60:
			c.MoveForward = true
			c.MoveRight = i%4 == 0
		case i == 60:
			c.Jump = true
		}
		p.Tick(c)
		l.step()
	}

	e, _ := l.sim.Entry(l.id)
	local := p.Local()
	if d := local.Position.Sub(e.Character.Position).Len(); d > 1e-9 {
		t.Fatalf("client %v vs server %v (diff %g)", local.Position, e.Character.Position, d)
	}
	_, max, count := p.Metrics().Summary()
	if count == 0 {
		t.Fatal("no divergence samples recorded")
	}
	if max > 1e-9 {
		t.Fatalf("unexpected divergence %g", max)
	}
}

func TestPredictionSettlesAfterServerBufferPrimes(t *testing.T) {
	cfg := config.Defaults()
	if cfg.Input.BufferMin < 2 {
		t.Fatalf("default buffer_min = %d", cfg.Input.BufferMin)
	}
	l, p, _ := newLoopbackWith(cfg, 0)

	controls := func(i int) core.Controls {
		c := core.Controls{Yaw: float64(i) * 0.01, MoveForward: i < 150}
		c.MoveRight = i%5 == 0
		c.Jump = i == 90
		return c
	}

	// 服务器攒够 buffer_min 个输入后在一个 tick 内处理完，客户端只纠正这一次
	warmup := 2 * cfg.Input.BufferMin
	for i := 0; i < warmup; i++ {
		p.Tick(controls(i))
		l.step()
	}
	_, first, count := p.Metrics().Summary()
	if count == 0 || first < 1e-3 {
		t.Fatalf("expected one priming correction, max %g over %d samples", first, count)
	}

	p.metrics = NewNetworkMetrics(time.Hour)
	for i := warmup; i < 250; i++ {
		p.Tick(controls(i))
		l.step()
	}
	_, max, count := p.Metrics().Summary()
	if count == 0 {
		t.Fatal("no divergence samples after priming")
	}
	if max > 1e-9 {
		t.Fatalf("divergence %g after priming", max)
	}
	e, _ := l.sim.Entry(l.id)
	if d := p.Local().Position.Sub(e.Character.Position).Len(); d > 1e-9 {
		t.Fatalf("client %v vs server %v", p.Local().Position, e.Character.Position)
	}
}

func TestPredictionConvergesUnderLatency(t *testing.T) {
	l, p, _ := newLoopback(4)

	for i := 0; i < 300; i++ {
		c := core.Controls{Yaw: 0.5}
		if i < 80 {
			c.MoveForward = true
			c.MoveLeft = i%3 == 0
		}
		p.Tick(c)
		l.step()
	}

	e, _ := l.sim.Entry(l.id)
	local := p.Local()
	if d := local.Position.Sub(e.Character.Position).Len(); d > 1e-3 {
		t.Fatalf("did not converge: client %v server %v", local.Position, e.Character.Position)
	}
	if local.State.VisualOffset.Len() > 1e-6 {
		t.Fatalf("visual offset not decayed: %v", local.State.VisualOffset)
	}
	if _, ok := p.LastAppliedTick(); !ok {
		t.Fatal("no snapshot applied")
	}
}

func TestInputsCarryAckAndRedundancy(t *testing.T) {
	cfg := config.Defaults()
	out := &recordingSender{}
	p := NewPredictor(cfg, testWorld(), 1, testSpawn(), nil, out)

	p.Tick(core.Controls{})
	if len(out.batches) != 1 || len(out.batches[0]) != 1 {
		t.Fatalf("first send: %+v", out.batches)
	}
	if out.batches[0][0].ServerTickAck != nil {
		t.Fatal("ack set before any snapshot")
	}

	pos := testSpawn()
	vel := mgl64.Vec3{}
	p.ApplySnapshot(snapshot.TickSnapshot{
		Tick:       7,
		Characters: []snapshot.CharacterSnapshot{{Owner: 1, Position: &pos, Velocity: &vel}},
	})
	p.Tick(core.Controls{MoveForward: true})

	last := out.batches[len(out.batches)-1]
	if len(last) != cfg.Input.RedundantSends {
		t.Fatalf("sent %d inputs, want %d", len(last), cfg.Input.RedundantSends)
	}
	if last[0].ID != 0 || last[1].ID != 1 {
		t.Fatalf("ids = %d,%d", last[0].ID, last[1].ID)
	}
	if last[1].ServerTickAck == nil || *last[1].ServerTickAck != 7 {
		t.Fatalf("ack = %v, want 7", last[1].ServerTickAck)
	}
}

func TestStaleSnapshotIsIgnored(t *testing.T) {
	p := NewPredictor(config.Defaults(), testWorld(), 1, testSpawn(), nil, nil)
	a := mgl64.Vec3{1, 0.5, 1}
	b := mgl64.Vec3{2, 0.5, 2}

	if !p.ApplySnapshot(snapshot.TickSnapshot{Tick: 5, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &a}}}) {
		t.Fatal("first snapshot rejected")
	}
	for _, tick := range []uint32{5, 4} {
		if p.ApplySnapshot(snapshot.TickSnapshot{Tick: tick, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &b}}}) {
			t.Fatalf("tick %d accepted after 5", tick)
		}
	}
	chars := p.Characters()
	if len(chars) != 2 || chars[1].Position != a {
		t.Fatalf("characters = %+v", chars)
	}
}

func TestDiffWithoutBaselineIsDropped(t *testing.T) {
	p := NewPredictor(config.Defaults(), testWorld(), 1, testSpawn(), nil, nil)
	base := uint32(3)
	pos := mgl64.Vec3{1, 1, 1}
	if p.ApplySnapshot(snapshot.TickSnapshot{Tick: 4, BaselineTick: &base, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &pos}}}) {
		t.Fatal("diff applied without baseline")
	}
	if _, ok := p.LastAppliedTick(); ok {
		t.Fatal("last applied tick advanced")
	}
}

func TestDiffIsReconstructedAgainstBaseline(t *testing.T) {
	p := NewPredictor(config.Defaults(), testWorld(), 1, testSpawn(), nil, nil)
	pos := mgl64.Vec3{3, 0.5, -2}
	vel := mgl64.Vec3{}
	full := snapshot.TickSnapshot{Tick: 1, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &pos, Velocity: &vel}}}
	p.ApplySnapshot(full)

	newVel := mgl64.Vec3{1, 0, 0}
	base := uint32(1)
	diff := snapshot.TickSnapshot{Tick: 2, BaselineTick: &base, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Velocity: &newVel}}}
	if !p.ApplySnapshot(diff) {
		t.Fatal("diff rejected")
	}
	chars := p.Characters()
	remote := chars[1]
	if remote.Position != pos || remote.State.Velocity != newVel {
		t.Fatalf("remote = %v / %v", remote.Position, remote.State.Velocity)
	}
}

func TestRemoteCorrectionIsSmoothed(t *testing.T) {
	cfg := config.Defaults()
	p := NewPredictor(cfg, testWorld(), 1, testSpawn(), nil, nil)
	a := mgl64.Vec3{0, 0.5, 0}
	b := mgl64.Vec3{0.5, 0.5, 0}
	p.ApplySnapshot(snapshot.TickSnapshot{Tick: 1, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &a}}})
	p.ApplySnapshot(snapshot.TickSnapshot{Tick: 2, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &b}}})

	remote := p.Characters()[1]
	if !remote.RenderPosition().ApproxEqual(a) {
		t.Fatalf("render position jumped: %v", remote.RenderPosition())
	}

	p.Smooth(0.01)
	remote = p.Characters()[1]
	want := 0.5 - cfg.Smoothing.CorrectionSpeed*0.01
	if got := remote.State.VisualOffset.Len(); got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("offset = %g, want %g", got, want)
	}

	p.Smooth(1)
	if off := p.Characters()[1].State.VisualOffset; off != (mgl64.Vec3{}) {
		t.Fatalf("offset not decayed: %v", off)
	}
}

func TestLargeCorrectionIsClamped(t *testing.T) {
	cfg := config.Defaults()
	p := NewPredictor(cfg, testWorld(), 1, testSpawn(), nil, nil)
	a := mgl64.Vec3{0, 0.5, 0}
	b := mgl64.Vec3{4, 0.5, 0}
	p.ApplySnapshot(snapshot.TickSnapshot{Tick: 1, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &a}}})
	p.ApplySnapshot(snapshot.TickSnapshot{Tick: 2, Characters: []snapshot.CharacterSnapshot{{Owner: 2, Position: &b}}})

	off := p.Characters()[1].State.VisualOffset.Len()
	if off > cfg.Smoothing.MaxOffset+1e-9 {
		t.Fatalf("offset %g exceeds max %g", off, cfg.Smoothing.MaxOffset)
	}
}

func TestDespawnRemovesRemoteOnly(t *testing.T) {
	inbox := make(chan protocol.ServerMessage, 8)
	p := NewPredictor(config.Defaults(), testWorld(), 1, testSpawn(), inbox, nil)
	a := mgl64.Vec3{1, 0.5, 0}
	c := mgl64.Vec3{2, 0.5, 0}
	p.ApplySnapshot(snapshot.TickSnapshot{Tick: 1, Characters: []snapshot.CharacterSnapshot{
		{Owner: 2, Position: &a},
		{Owner: 3, Position: &c},
	}})
	if n := len(p.Characters()); n != 3 {
		t.Fatalf("characters = %d, want 3", n)
	}

	inbox <- protocol.Despawn{ClientID: 2}
	inbox <- protocol.Despawn{ClientID: 1}
	p.Tick(core.Controls{})
	chars := p.Characters()
	if len(chars) != 2 || chars[0].State.Owner != 1 || chars[1].State.Owner != 3 {
		t.Fatalf("after despawn: %+v", chars)
	}

	// 快照中缺席的角色同样移除
	p.ApplySnapshot(snapshot.TickSnapshot{Tick: 2})
	chars = p.Characters()
	if len(chars) != 1 || chars[0].State.Owner != 1 {
		t.Fatalf("after empty snapshot: %+v", chars)
	}
}

func TestWeaponConfigsFromInbox(t *testing.T) {
	inbox := make(chan protocol.ServerMessage, 1)
	p := NewPredictor(config.Defaults(), testWorld(), 1, testSpawn(), inbox, nil)
	inbox <- protocol.WeaponConfigList{Configs: core.DefaultWeapons()}
	p.Tick(core.Controls{})
	if got := len(p.Weapons()); got != len(core.DefaultWeapons()) {
		t.Fatalf("weapons = %d", got)
	}
}

func TestHistoryIsPruned(t *testing.T) {
	cfg := config.Defaults()
	cfg.Input.HistorySeconds = 10.0 / float64(cfg.TickRateHz)
	p := NewPredictor(cfg, testWorld(), 1, testSpawn(), nil, nil)
	for i := 0; i < 30; i++ {
		p.Tick(core.Controls{MoveForward: true})
	}
	if n := p.PendingInputs(); n != 10 {
		t.Fatalf("history = %d, want 10", n)
	}
}
