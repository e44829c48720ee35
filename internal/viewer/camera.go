package viewer

import "github.com/go-gl/mathgl/mgl64"

// camera 俯视投影：世界 x 向右，世界 -Z 向上
type camera struct {
	cx, cy float64 // 屏幕上的原点
	scale  float64 // 像素/米
}

func newCamera(width, height int, halfExtent float64) camera {
	s := float64(min(width, height)) / (2*halfExtent + 2)
	return camera{cx: float64(width) / 2, cy: float64(height) / 2, scale: s}
}

func (c camera) toScreen(p mgl64.Vec3) (float32, float32) {
	return float32(c.cx + p.X()*c.scale), float32(c.cy + p.Z()*c.scale)
}

func (c camera) length(m float64) float32 {
	return float32(m * c.scale)
}
