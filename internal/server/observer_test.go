package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marsarena/pkg/core"
	"marsarena/pkg/snapshot"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

func TestObserverStreamsTicks(t *testing.T) {
	obs := NewObserver()
	srv := httptest.NewServer(obs.WSHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for obs.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("observer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := snapshot.Build(9, []snapshot.Entry{{Owner: 1, Position: mgl64.Vec3{1, 2, 3}}})
	obs.RecordTick(TickReport{Tick: 9, Snapshot: snap, Fires: []core.FireEvent{{Tick: 9, Owner: 1, Weapon: "rifle"}}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d", kind)
	}
	var frame ObserverFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "tick" || frame.Tick != 9 || frame.Snapshot == nil {
		t.Fatalf("frame = %+v", frame)
	}
	c, ok := frame.Snapshot.Find(1)
	if !ok || c.Position == nil || *c.Position != (mgl64.Vec3{1, 2, 3}) {
		t.Fatalf("character = %+v", c)
	}
	if len(frame.Fires) != 1 || frame.Fires[0].Weapon != "rifle" {
		t.Fatalf("fires = %+v", frame.Fires)
	}
}
