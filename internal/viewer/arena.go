package viewer

import (
	"image/color"
	"sort"

	"marsarena/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// ArenaRenderer 俯视绘制静态碰撞体，按顶面高度由低到高
type ArenaRenderer struct {
	shapes []core.Shape
}

func NewArenaRenderer(world *core.StaticWorld) *ArenaRenderer {
	shapes := append([]core.Shape(nil), world.Shapes...)
	sort.SliceStable(shapes, func(i, j int) bool { return shapeTop(shapes[i]) < shapeTop(shapes[j]) })
	return &ArenaRenderer{shapes: shapes}
}

func shapeTop(s core.Shape) float64 {
	switch v := s.(type) {
	case core.Box:
		return v.Max.Y()
	case core.Cylinder:
		return v.Center.Y() + v.HalfHeight
	}
	return 0
}

// heightColor 越高越亮
func heightColor(top float64) color.RGBA {
	shade := 70 + top*30
	if shade > 220 {
		shade = 220
	}
	if shade < 40 {
		shade = 40
	}
	v := uint8(shade)
	return color.RGBA{v + 20, v, v - 20, 255}
}

func (a *ArenaRenderer) Draw(screen *ebiten.Image, cam camera) {
	outline := color.RGBA{20, 10, 5, 160}
	for _, s := range a.shapes {
		c := heightColor(shapeTop(s))
		switch v := s.(type) {
		case core.Box:
			x, y := cam.toScreen(v.Min)
			size := v.Size()
			w, h := cam.length(size.X()), cam.length(size.Z())
			vector.DrawFilledRect(screen, x, y, w, h, c, false)
			vector.StrokeRect(screen, x, y, w, h, 1, outline, false)
		case core.Cylinder:
			x, y := cam.toScreen(v.Center)
			r := cam.length(v.Radius)
			vector.DrawFilledCircle(screen, x, y, r, c, true)
			vector.StrokeCircle(screen, x, y, r, 1, outline, true)
		}
	}
}
