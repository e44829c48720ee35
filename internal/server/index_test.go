package server

import (
	"context"
	"path/filepath"
	"testing"

	"marsarena/pkg/core"
)

func TestSessionIndexRecordsSessionsAndFires(t *testing.T) {
	idx, err := OpenSessionIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	idx.RecordJoin(1, "ares")
	idx.RecordJoin(2, "phobos")
	idx.RecordTick(TickReport{Tick: 5, Fires: []core.FireEvent{
		{Tick: 5, Owner: 1, Weapon: "rifle", Damage: 12, AmmoRem: 29},
		{Tick: 5, Owner: 2, Weapon: "pistol", Damage: 20, AmmoRem: 11},
	}})
	idx.RecordTick(TickReport{Tick: 12, Fires: []core.FireEvent{
		{Tick: 12, Owner: 1, Weapon: "rifle", Damage: 12, AmmoRem: 28},
	}})
	idx.RecordLeave(1)
	idx.Sync()

	ctx := context.Background()
	sessions, err := idx.Sessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].ClientID != 1 || sessions[0].Username != "ares" || sessions[0].LeftAt == nil {
		t.Fatalf("session 1 = %+v", sessions[0])
	}
	if sessions[1].LeftAt != nil {
		t.Fatalf("session 2 should still be open: %+v", sessions[1])
	}

	n, err := idx.FireCount(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("fire count = %d, want 2", n)
	}
}
