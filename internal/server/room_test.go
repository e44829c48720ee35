package server

import (
	"context"
	"net"
	"testing"

	"marsarena/internal/config"
	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
)

type fakeSession struct {
	id     core.ClientID
	msgs   []protocol.ServerMessage
	closed bool
}

func (s *fakeSession) ID() core.ClientID                            { return s.id }
func (s *fakeSession) SetClientID(id core.ClientID)                 { s.id = id }
func (s *fakeSession) Close()                                       { s.closed = true }
func (s *fakeSession) CloseWithoutNotify()                          { s.closed = true }
func (s *fakeSession) SendMessage(msg protocol.ServerMessage) error { s.msgs = append(s.msgs, msg); return nil }
func (s *fakeSession) Closed() bool                                 { return s.closed }

// closingSession 在收到欢迎消息后断开，此时尚未登记客户端 ID
type closingSession struct{ fakeSession }

func (s *closingSession) SendMessage(msg protocol.ServerMessage) error {
	if _, ok := msg.(protocol.Welcome); ok {
		s.closed = true
	}
	return s.fakeSession.SendMessage(msg)
}

type fakeDatagrams struct {
	bound   map[core.ClientID]*net.UDPAddr
	unbound []core.ClientID
	sent    [][]byte
}

func newFakeDatagrams() *fakeDatagrams {
	return &fakeDatagrams{bound: make(map[core.ClientID]*net.UDPAddr)}
}

func (d *fakeDatagrams) Bind(id core.ClientID, addr *net.UDPAddr) { d.bound[id] = addr }
func (d *fakeDatagrams) Unbind(id core.ClientID) {
	delete(d.bound, id)
	d.unbound = append(d.unbound, id)
}
func (d *fakeDatagrams) SendTo(addr *net.UDPAddr, data []byte) error {
	d.sent = append(d.sent, data)
	return nil
}
func (d *fakeDatagrams) Port() int { return 7001 }

func join(t *testing.T, r *Room, s Session, name string) core.ClientID {
	t.Helper()
	resp := make(chan joinResult, 1)
	r.handleJoin(joinRequest{session: s, username: name, respCh: resp})
	res := <-resp
	if res.err != nil {
		t.Fatalf("join %s: %v", name, res.err)
	}
	return res.id
}

func newTestRoom(cfg config.Config, dg datagramTransport) *Room {
	return NewRoom(context.Background(), cfg, testWorld(), dg)
}

func TestRoomJoinSendsWelcomeAndWeapons(t *testing.T) {
	r := newTestRoom(config.Defaults(), newFakeDatagrams())
	sess := &fakeSession{}
	id := join(t, r, sess, "ares")

	if id != 1 || sess.ID() != 1 {
		t.Fatalf("id = %d, session id = %d", id, sess.ID())
	}
	if len(sess.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(sess.msgs))
	}
	w, ok := sess.msgs[0].(protocol.Welcome)
	if !ok || w.ClientID != 1 || w.UDPPort != 7001 || w.TickRate != 64 {
		t.Fatalf("welcome = %#v", sess.msgs[0])
	}
	if got, err := r.tokens.Verify(w.Token); err != nil || got != 1 {
		t.Fatalf("token verifies to %d, %v", got, err)
	}
	if wl, ok := sess.msgs[1].(protocol.WeaponConfigList); !ok || len(wl.Configs) != 2 {
		t.Fatalf("weapons = %#v", sess.msgs[1])
	}
}

func TestRoomRejectsWhenFull(t *testing.T) {
	cfg := config.Defaults()
	cfg.Network.MaxClients = 1
	r := newTestRoom(cfg, nil)
	join(t, r, &fakeSession{}, "a")

	resp := make(chan joinResult, 1)
	r.handleJoin(joinRequest{session: &fakeSession{}, username: "b", respCh: resp})
	if res := <-resp; res.err == nil {
		t.Fatal("expected full room error")
	}
}

func TestRoomChannelSelection(t *testing.T) {
	dg := newFakeDatagrams()
	r := newTestRoom(config.Defaults(), dg)
	sess := &fakeSession{}
	id := join(t, r, sess, "ares")

	// 首个快照是完整快照，走可靠通道
	r.tick()
	if len(sess.msgs) != 3 {
		t.Fatalf("reliable messages = %d, want 3", len(sess.msgs))
	}
	if snap := sess.msgs[2].(protocol.Snapshot); snap.IsDiff() {
		t.Fatal("first snapshot should be full")
	}

	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
	r.handleBind(bindRequest{id: id, addr: addr})
	if dg.bound[id] != addr {
		t.Fatal("address not bound")
	}
	if len(dg.sent) != 1 {
		t.Fatalf("bind should answer with a datagram, sent %d", len(dg.sent))
	}

	// 确认 tick 1 之后差量快照走 UDP
	r.handleInputs(&InputsEvent{ClientID: id, Inputs: []core.PlayerInput{{ID: 0, ServerTickAck: u32(1)}}})
	r.tick()
	if len(sess.msgs) != 3 {
		t.Fatalf("diff went over the reliable channel")
	}
	if len(dg.sent) != 2 {
		t.Fatalf("datagrams = %d, want 2", len(dg.sent))
	}
	msg, err := protocol.UnmarshalServer(dg.sent[1])
	if err != nil {
		t.Fatal(err)
	}
	if snap, ok := msg.(protocol.Snapshot); !ok || !snap.IsDiff() || *snap.BaselineTick != 1 {
		t.Fatalf("datagram = %#v", msg)
	}
}

func TestRoomLeaveDespawnsForOthers(t *testing.T) {
	dg := newFakeDatagrams()
	r := newTestRoom(config.Defaults(), dg)
	a := &fakeSession{}
	b := &fakeSession{}
	idA := join(t, r, a, "a")
	join(t, r, b, "b")

	before := len(b.msgs)
	r.handleLeave(idA)
	if len(b.msgs) != before+1 {
		t.Fatalf("b received %d new messages", len(b.msgs)-before)
	}
	if d, ok := b.msgs[before].(protocol.Despawn); !ok || d.ClientID != idA {
		t.Fatalf("message = %#v", b.msgs[before])
	}
	if len(dg.unbound) != 1 || dg.unbound[0] != idA {
		t.Fatalf("unbound = %v", dg.unbound)
	}

	// 离开后的输入被忽略
	r.handleInputs(&InputsEvent{ClientID: idA, Inputs: []core.PlayerInput{{ID: 0}}})
	if _, ok := r.sim.Entry(idA); ok {
		t.Fatal("inputs from departed client re-registered it")
	}
}

func TestRoomTickFeedsRecorders(t *testing.T) {
	rec := &countingRecorder{}
	r := NewRoom(context.Background(), config.Defaults(), testWorld(), nil, rec)
	id := join(t, r, &fakeSession{}, "a")
	r.tick()
	r.tick()
	r.handleLeave(id)
	if rec.joins != 1 || rec.ticks != 2 || rec.leaves != 1 {
		t.Fatalf("recorder = %+v", rec)
	}
}

type countingRecorder struct {
	joins, leaves, ticks int
}

func (c *countingRecorder) RecordJoin(core.ClientID, string) { c.joins++ }
func (c *countingRecorder) RecordLeave(core.ClientID)        { c.leaves++ }
func (c *countingRecorder) RecordTick(TickReport)            { c.ticks++ }

func TestRoomJoinCleansUpWhenClosedDuringHandshake(t *testing.T) {
	dg := newFakeDatagrams()
	r := newTestRoom(config.Defaults(), dg)
	other := &fakeSession{}
	join(t, r, other, "other")

	sess := &closingSession{}
	resp := make(chan joinResult, 1)
	r.handleJoin(joinRequest{session: sess, username: "gone", respCh: resp})
	res := <-resp
	if res.err == nil {
		t.Fatal("join succeeded on a closed session")
	}
	if len(r.peers) != 1 {
		t.Fatalf("peers = %d, want 1", len(r.peers))
	}
	if _, ok := r.sim.Entry(sess.ID()); ok {
		t.Fatal("closed session left a character behind")
	}
	if len(dg.unbound) != 1 || dg.unbound[0] != sess.ID() {
		t.Fatalf("unbound = %v", dg.unbound)
	}
	if n := len(other.msgs); n == 0 {
		t.Fatal("other client saw nothing")
	} else if d, ok := other.msgs[n-1].(protocol.Despawn); !ok || d.ClientID != sess.ID() {
		t.Fatalf("last message = %#v", other.msgs[n-1])
	}
}
