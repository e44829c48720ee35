package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"marsarena/pkg/core"
	"marsarena/pkg/protocol"
	"marsarena/pkg/transport"
)

type fakeHandler struct {
	joined  chan string
	inputs  chan *InputsEvent
	removed chan core.ClientID
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		joined:  make(chan string, 4),
		inputs:  make(chan *InputsEvent, 4),
		removed: make(chan core.ClientID, 4),
	}
}

func (h *fakeHandler) handleConnect(c *Connection, username string) (core.ClientID, error) {
	c.SetClientID(5)
	h.joined <- username
	return 5, nil
}
func (h *fakeHandler) handleInputs(ev *InputsEvent)  { h.inputs <- ev }
func (h *fakeHandler) removeClient(id core.ClientID) { h.removed <- id }

func writeClientFrame(t *testing.T, conn net.Conn, msg protocol.ClientMessage) {
	t.Helper()
	data, err := protocol.MarshalClient(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := transport.WriteFrame(conn, data, 2*time.Second); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestConnectionDispatchAndClose(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	h := newFakeHandler()
	c := NewConnection(serverSide, h)
	var wg sync.WaitGroup
	wg.Add(1)
	go c.Handle(context.Background(), &wg)

	// 加入前的输入被拒绝
	writeClientFrame(t, clientSide, protocol.PlayerInputs{Inputs: []core.PlayerInput{{ID: 0}}})

	writeClientFrame(t, clientSide, protocol.Connect{Username: "ares"})
	select {
	case name := <-h.joined:
		if name != "ares" {
			t.Fatalf("username = %q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connect not dispatched")
	}

	writeClientFrame(t, clientSide, protocol.PlayerInputs{Inputs: []core.PlayerInput{{ID: 1}}})
	select {
	case ev := <-h.inputs:
		if ev.ClientID != 5 || len(ev.Inputs) != 1 || ev.Inputs[0].ID != 1 {
			t.Fatalf("inputs = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inputs not dispatched")
	}
	if len(h.inputs) != 0 {
		t.Fatal("inputs before join were forwarded")
	}

	// 服务器消息按帧写出
	if err := c.SendMessage(protocol.Despawn{ClientID: 9}); err != nil {
		t.Fatal(err)
	}
	_ = clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := transport.ReadFrame(clientSide)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.UnmarshalServer(data)
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := msg.(protocol.Despawn); !ok || d.ClientID != 9 {
		t.Fatalf("message = %#v", msg)
	}

	writeClientFrame(t, clientSide, protocol.Pong{ServerTime: time.Now().Add(-20 * time.Millisecond).UnixMilli()})
	writeClientFrame(t, clientSide, protocol.Disconnect{})
	select {
	case id := <-h.removed:
		if id != 5 {
			t.Fatalf("removed %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect did not remove the client")
	}
	wg.Wait()

	if c.RTT() < 20*time.Millisecond {
		t.Fatalf("rtt = %v", c.RTT())
	}
	if err := c.SendMessage(protocol.Ping{}); err != ErrConnectionClosed {
		t.Fatalf("send after close: %v", err)
	}
}

func TestConnectionCloseWithoutNotify(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	h := newFakeHandler()
	c := NewConnection(serverSide, h)
	c.SetClientID(3)
	c.CloseWithoutNotify()
	c.Close()
	if len(h.removed) != 0 {
		t.Fatal("room was notified")
	}
}
