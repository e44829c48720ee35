package viewer

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// 曳光持续帧数与长度（米）
const (
	tracerFrames = 6
	tracerLength = 6.0
)

type tracer struct {
	from mgl64.Vec3
	yaw  float64
	left int
}

// TracerRenderer 本地开火时画一条短暂的曳光
type TracerRenderer struct {
	tracers []tracer
}

func (t *TracerRenderer) Add(from mgl64.Vec3, yaw float64) {
	t.tracers = append(t.tracers, tracer{from: from, yaw: yaw, left: tracerFrames})
}

// Update 每帧衰减，过期的移除
func (t *TracerRenderer) Update() {
	kept := t.tracers[:0]
	for _, tr := range t.tracers {
		tr.left--
		if tr.left > 0 {
			kept = append(kept, tr)
		}
	}
	t.tracers = kept
}

func (t *TracerRenderer) Draw(screen *ebiten.Image, cam camera) {
	for _, tr := range t.tracers {
		dir := mgl64.Vec3{-math.Sin(tr.yaw), 0, -math.Cos(tr.yaw)}
		x0, y0 := cam.toScreen(tr.from)
		x1, y1 := cam.toScreen(tr.from.Add(dir.Mul(tracerLength)))
		alpha := uint8(255 * tr.left / tracerFrames)
		vector.StrokeLine(screen, x0, y0, x1, y1, 2, color.RGBA{255, 230, 120, alpha}, true)
	}
}
