package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestDefaultArenaLayout(t *testing.T) {
	w := DefaultArena()
	if n := len(w.Shapes); n != 6+StairSteps {
		t.Fatalf("shapes = %d", n)
	}

	// 尺寸均为完整边长：地板顶面在 y=0，墙内侧在 ±4.5
	floor := w.Shapes[0].(Box)
	if floor.Max[1] != 0 || floor.Max[0] != ArenaHalfExtent || floor.Min[2] != -ArenaHalfExtent {
		t.Fatalf("floor = %+v", floor)
	}
	if east := w.Shapes[2].(Box); east.Min[0] != ArenaHalfExtent-0.5 || east.Max[1] != WallHeight {
		t.Fatalf("east wall = %+v", east)
	}
	if west := w.Shapes[1].(Box); west.Max[0] != -ArenaHalfExtent+0.5 {
		t.Fatalf("west wall = %+v", west)
	}

	for i := 0; i < StairSteps; i++ {
		step := w.Shapes[6+i].(Box)
		top := float64(i)*StairStepHeight + StairStepHeight/2
		if math.Abs(step.Max[1]-top) > 1e-12 || math.Abs(step.Size()[2]-StairStepDepth) > 1e-12 {
			t.Fatalf("step %d = %+v", i, step)
		}
	}

	const r = 0.01
	hit, ok := w.CastSphere(mgl64.Vec3{3, 5, 3}, r, mgl64.Vec3{0, -1, 0}, 10)
	if !ok || math.Abs(hit.Distance-(5-r)) > 1e-9 {
		t.Fatalf("floor hit = %+v, %v", hit, ok)
	}
	hit, ok = w.CastSphere(mgl64.Vec3{0, 5, 2}, r, mgl64.Vec3{0, -1, 0}, 10)
	if !ok || math.Abs(hit.Distance-(5-r-0.45)) > 1e-9 {
		t.Fatalf("stair hit = %+v, %v", hit, ok)
	}
}

func TestDefaultSpawnIsAboveStairs(t *testing.T) {
	w := DefaultArena()
	spawn := DefaultSpawn()
	hit, ok := w.CastSphere(spawn, DefaultCharacterRadius, mgl64.Vec3{0, -1, 0}, spawn[1])
	if !ok || hit.Penetration > 0 || hit.Distance <= 0 {
		t.Fatalf("spawn %v: hit = %+v, %v", spawn, hit, ok)
	}
	if !isWalkable(hit.Normal, DefaultMaxSlopeDegrees) {
		t.Fatalf("spawn lands on steep surface %v", hit.Normal)
	}
}
