package viewer

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"
)

var hudFont = text.NewGoXFace(basicfont.Face7x13)

type keyTracker struct {
	prev map[ebiten.Key]bool
}

func (k *keyTracker) JustPressed(key ebiten.Key) bool {
	if k.prev == nil {
		k.prev = make(map[ebiten.Key]bool)
	}
	now := ebiten.IsKeyPressed(key)
	prev := k.prev[key]
	k.prev[key] = now
	return now && !prev
}

// hudInfo 调试面板的内容
type hudInfo struct {
	ClientID  uint64
	Tick      uint32
	HasTick   bool
	Pending   int
	UDP       bool
	AvgDiff   float64
	MaxDiff   float64
	Samples   int
	Weapon    string
	Players   int
	Scheme    ControlScheme
	Position  [3]float64
	Grounded  bool
	ActualTPS float64
}

func (h hudInfo) lines() []string {
	tick := "-"
	if h.HasTick {
		tick = fmt.Sprintf("%d", h.Tick)
	}
	channel := "reliable"
	if h.UDP {
		channel = "udp"
	}
	return []string{
		fmt.Sprintf("client %d  players %d  tps %.0f", h.ClientID, h.Players, h.ActualTPS),
		fmt.Sprintf("snapshot %s  history %d  inputs via %s", tick, h.Pending, channel),
		fmt.Sprintf("pos %.2f %.2f %.2f  grounded %v", h.Position[0], h.Position[1], h.Position[2], h.Grounded),
		fmt.Sprintf("divergence avg %.4f max %.4f (%d)", h.AvgDiff, h.MaxDiff, h.Samples),
		fmt.Sprintf("weapon %s  controls %s", h.Weapon, h.Scheme),
	}
}

func drawHUD(screen *ebiten.Image, info hudInfo) {
	y := 8
	for _, line := range info.lines() {
		drawText(screen, 8, y, line, color.RGBA{230, 235, 240, 255})
		y += 16
	}
}

func drawText(screen *ebiten.Image, x, y int, msg string, clr color.Color) {
	options := &text.DrawOptions{}
	options.GeoM.Translate(float64(x), float64(y))
	options.ColorScale.ScaleWithColor(clr)
	text.Draw(screen, msg, hudFont, options)
}
