package snapshot

import (
	"math/rand"
	"testing"

	"marsarena/pkg/core"

	"github.com/go-gl/mathgl/mgl64"
)

func randomVec(rng *rand.Rand) mgl64.Vec3 {
	// 少量离散取值，保证随机对中经常出现相同字段
	pick := func() float64 { return float64(rng.Intn(3)) * 0.5 }
	return mgl64.Vec3{pick(), pick(), pick()}
}

func randomSnapshot(rng *rand.Rand, tick uint32) TickSnapshot {
	var entries []Entry
	for id := core.ClientID(1); id <= 5; id++ {
		if rng.Intn(4) == 0 {
			continue
		}
		entries = append(entries, Entry{Owner: id, Position: randomVec(rng), Velocity: randomVec(rng)})
	}
	s := Build(tick, entries)
	if rng.Intn(2) == 0 {
		ack := rng.Uint32()
		s.AckedInputID = &ack
	}
	return s
}

func TestDiffApplyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		old := randomSnapshot(rng, uint32(i))
		cur := randomSnapshot(rng, uint32(i+1))

		diff := cur.Diff(old)
		if !diff.IsDiff() || *diff.BaselineTick != old.Tick {
			t.Fatalf("iteration %d: diff does not name its baseline: %+v", i, diff.BaselineTick)
		}
		got := diff.Apply(old)
		if !got.Equal(cur) {
			t.Fatalf("iteration %d: apply(diff(new, old), old) != new\n got: %+v\nwant: %+v", i, got, cur)
		}
	}
}

func TestDiffAgainstSelfClearsFields(t *testing.T) {
	s := Build(10, []Entry{
		{Owner: 2, Position: mgl64.Vec3{1, 2, 3}, Velocity: mgl64.Vec3{0, 0, 1}},
		{Owner: 1, Position: mgl64.Vec3{4, 5, 6}},
	})
	diff := s.Diff(s)
	if len(diff.Characters) != 2 {
		t.Fatalf("characters = %d, want 2", len(diff.Characters))
	}
	for _, c := range diff.Characters {
		if c.Position != nil || c.Velocity != nil {
			t.Fatalf("owner %d: expected all optional fields unset, got %+v", c.Owner, c)
		}
	}
	if diff.Characters[0].Owner != 1 || diff.Characters[1].Owner != 2 {
		t.Fatalf("characters not ordered by owner: %+v", diff.Characters)
	}
}

func TestDiffNewAndRemovedCharacters(t *testing.T) {
	old := Build(1, []Entry{
		{Owner: 1, Position: mgl64.Vec3{1, 0, 0}},
		{Owner: 2, Position: mgl64.Vec3{2, 0, 0}},
	})
	cur := Build(2, []Entry{
		{Owner: 2, Position: mgl64.Vec3{2, 0, 1}},
		{Owner: 3, Position: mgl64.Vec3{3, 0, 0}},
	})

	diff := cur.Diff(old)
	c3, ok := diff.Find(3)
	if !ok || c3.Position == nil || c3.Velocity == nil {
		t.Fatalf("new character must be sent in full: %+v", c3)
	}
	c2, _ := diff.Find(2)
	if c2.Position == nil || c2.Velocity != nil {
		t.Fatalf("changed position should be set, unchanged velocity unset: %+v", c2)
	}

	got := diff.Apply(old)
	if _, ok := got.Find(1); ok {
		t.Fatal("removed character reappeared after apply")
	}
	if !got.Equal(cur) {
		t.Fatalf("reconstruction mismatch: %+v", got)
	}
}

func TestApplyFullSnapshotIgnoresBaseline(t *testing.T) {
	full := Build(5, []Entry{{Owner: 1, Position: mgl64.Vec3{1, 1, 1}}})
	other := Build(4, []Entry{{Owner: 9}})
	if got := full.Apply(other); !got.Equal(full) {
		t.Fatalf("full snapshot changed by apply: %+v", got)
	}
}

func TestDiffDoesNotAlias(t *testing.T) {
	old := Build(1, []Entry{{Owner: 1, Position: mgl64.Vec3{0, 0, 0}}})
	cur := Build(2, []Entry{{Owner: 1, Position: mgl64.Vec3{1, 0, 0}}})
	diff := cur.Diff(old)
	(*diff.Characters[0].Position)[0] = 99
	if (*cur.Characters[0].Position)[0] != 1 {
		t.Fatal("diff shares memory with its source")
	}
}

func TestWithAck(t *testing.T) {
	s := Build(3, nil)
	ack := uint32(17)
	stamped := s.WithAck(&ack)
	ack = 18
	if stamped.AckedInputID == nil || *stamped.AckedInputID != 17 {
		t.Fatalf("ack = %v, want 17", stamped.AckedInputID)
	}
	if s.AckedInputID != nil {
		t.Fatal("WithAck mutated the source")
	}
}

func TestHistoryWindow(t *testing.T) {
	h := NewHistory(10)
	for tick := uint32(0); tick <= 30; tick++ {
		h.Push(Build(tick, nil))
	}
	if _, ok := h.Find(30); !ok {
		t.Fatal("latest snapshot missing")
	}
	if _, ok := h.Find(20); !ok {
		t.Fatal("snapshot inside the window missing")
	}
	if _, ok := h.Find(19); ok {
		t.Fatal("snapshot outside the window retained")
	}
	if h.Len() != 11 {
		t.Fatalf("len = %d, want 11", h.Len())
	}

	// 乱序与差量不入历史
	h.Push(Build(25, nil))
	diff := Build(31, nil).Diff(Build(30, nil))
	h.Push(diff)
	if latest, _ := h.Latest(); latest.Tick != 30 {
		t.Fatalf("latest tick = %d, want 30", latest.Tick)
	}
}

func TestHistoryForDuration(t *testing.T) {
	h := NewHistoryForDuration(500_000_000, 64) // 500ms
	if h.windowTicks != 32 {
		t.Fatalf("window = %d ticks, want 32", h.windowTicks)
	}
}
