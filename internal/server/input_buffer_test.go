package server

import (
	"reflect"
	"testing"

	"marsarena/pkg/core"
)

func inputsWithIDs(ids ...uint32) []core.PlayerInput {
	out := make([]core.PlayerInput, len(ids))
	for i, id := range ids {
		out[i] = core.PlayerInput{ID: id}
	}
	return out
}

func TestInputBufferOrderedInsertAndEviction(t *testing.T) {
	b := NewInputBuffer(5)
	for _, in := range inputsWithIDs(3, 1, 2, 4, 5, 6) {
		b.Insert(in)
	}
	if got, want := b.IDs(), []uint32{2, 3, 4, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestInputBufferRejectsDuplicates(t *testing.T) {
	b := NewInputBuffer(10)
	for _, in := range inputsWithIDs(4, 2, 4, 2, 3) {
		b.Insert(in)
	}
	if got, want := b.IDs(), []uint32{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	if b.Insert(core.PlayerInput{ID: 3}) {
		t.Fatal("duplicate insert reported success")
	}
}

func TestInputBufferStaysSortedUnderRandomOrder(t *testing.T) {
	b := NewInputBuffer(8)
	order := []uint32{10, 3, 7, 1, 15, 2, 9, 12, 4, 11, 8, 14, 6, 5, 13}
	for _, id := range order {
		b.Insert(core.PlayerInput{ID: id})
		ids := b.IDs()
		if len(ids) > 8 {
			t.Fatalf("buffer grew to %d", len(ids))
		}
		for i := 1; i < len(ids); i++ {
			if ids[i-1] >= ids[i] {
				t.Fatalf("not strictly ascending after inserting %d: %v", id, ids)
			}
		}
	}
}

func TestInputBufferDrain(t *testing.T) {
	b := NewInputBuffer(4)
	b.Insert(core.PlayerInput{ID: 2})
	b.Insert(core.PlayerInput{ID: 1})

	got := b.Drain()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("drain = %+v", got)
	}
	if b.Len() != 0 {
		t.Fatalf("len after drain = %d", b.Len())
	}
	if b.Drain() != nil {
		t.Fatal("drain of empty buffer should be nil")
	}
}
