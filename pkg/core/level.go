package core

import "github.com/go-gl/mathgl/mgl64"

// 默认竞技场参数
const (
	ArenaHalfExtent = 5.0
	WallHeight      = 4.0
	StairSteps      = 20
	StairStepWidth  = 2.0
	StairStepHeight = 0.1
	StairStepDepth  = 0.5
)

// DefaultArena 创建默认竞技场：地板、四面墙、一根柱子和一段楼梯
func DefaultArena() *StaticWorld {
	w := NewStaticWorld(
		NewBox(mgl64.Vec3{0, -0.5, 0}, mgl64.Vec3{2 * ArenaHalfExtent, 1, 2 * ArenaHalfExtent}),
		NewBox(mgl64.Vec3{-ArenaHalfExtent, WallHeight / 2, 0}, mgl64.Vec3{1, WallHeight, 2 * ArenaHalfExtent}),
		NewBox(mgl64.Vec3{ArenaHalfExtent, WallHeight / 2, 0}, mgl64.Vec3{1, WallHeight, 2 * ArenaHalfExtent}),
		NewBox(mgl64.Vec3{0, WallHeight / 2, -ArenaHalfExtent}, mgl64.Vec3{2 * ArenaHalfExtent, WallHeight, 1}),
		NewBox(mgl64.Vec3{0, WallHeight / 2, ArenaHalfExtent}, mgl64.Vec3{2 * ArenaHalfExtent, WallHeight, 1}),
		NewCylinder(mgl64.Vec3{-1, 2, -1}, 0.5, 8),
	)
	for i := 0; i < StairSteps; i++ {
		center := mgl64.Vec3{0, float64(i) * StairStepHeight, float64(i) * StairStepDepth}
		w.Add(NewBox(center, mgl64.Vec3{StairStepWidth, StairStepHeight, StairStepDepth}))
	}
	return w
}

// DefaultSpawn 默认出生点
func DefaultSpawn() mgl64.Vec3 {
	return mgl64.Vec3(SpawnPosition)
}
