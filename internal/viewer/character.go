package viewer

import (
	"image/color"
	"math"

	"marsarena/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// CharacterStyle 角色配色
type CharacterStyle struct {
	Name         string
	BodyColor    color.RGBA
	OutlineColor color.RGBA
}

var palette = []CharacterStyle{
	{Name: "锈红", BodyColor: color.RGBA{220, 90, 60, 255}, OutlineColor: color.RGBA{110, 30, 10, 255}},
	{Name: "冰蓝", BodyColor: color.RGBA{100, 180, 255, 255}, OutlineColor: color.RGBA{0, 50, 150, 255}},
	{Name: "沙黄", BodyColor: color.RGBA{235, 200, 110, 255}, OutlineColor: color.RGBA{120, 90, 20, 255}},
	{Name: "苔绿", BodyColor: color.RGBA{120, 200, 120, 255}, OutlineColor: color.RGBA{20, 90, 20, 255}},
	{Name: "暗夜", BodyColor: color.RGBA{60, 60, 70, 255}, OutlineColor: color.RGBA{200, 200, 200, 255}},
}

// StyleFor 按客户端 ID 轮换配色
func StyleFor(id core.ClientID) CharacterStyle {
	return palette[int(id%core.ClientID(len(palette)))]
}

// CharacterRenderer 在渲染位置画一个圆，本地角色额外画朝向
type CharacterRenderer struct {
	localID core.ClientID
}

func NewCharacterRenderer(localID core.ClientID) *CharacterRenderer {
	return &CharacterRenderer{localID: localID}
}

func (r *CharacterRenderer) Draw(screen *ebiten.Image, cam camera, c core.Character, yaw float64) {
	style := StyleFor(c.State.Owner)
	pos := c.RenderPosition()
	x, y := cam.toScreen(pos)
	radius := cam.length(c.Constants.Radius)

	// 离地越高影子越小
	shadow := radius * float32(1/(1+math.Max(0, pos.Y()-c.Constants.Radius)))
	vector.DrawFilledCircle(screen, x, y, shadow, color.RGBA{0, 0, 0, 70}, true)

	vector.DrawFilledCircle(screen, x, y, radius, style.BodyColor, true)
	vector.StrokeCircle(screen, x, y, radius, 2, style.OutlineColor, true)

	if !c.State.IsLocallyControlled(r.localID) {
		return
	}
	// 朝向：前方为 (-sin yaw, -cos yaw)
	fx := float32(-math.Sin(yaw)) * radius * 1.6
	fy := float32(-math.Cos(yaw)) * radius * 1.6
	vector.StrokeLine(screen, x, y, x+fx, y+fy, 3, style.OutlineColor, true)
	vector.StrokeCircle(screen, x, y, radius+4, 1, color.RGBA{255, 255, 255, 180}, true)
}
