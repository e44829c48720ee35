package viewer

import (
	"image/color"

	"marsarena/internal/client"
	"marsarena/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
)

const (
	ScreenWidth  = 640
	ScreenHeight = 640
)

// Viewer 俯视调试视图（Ebiten 游戏循环），TPS 等于模拟频率，每次 Update 推进一个 tick
type Viewer struct {
	game   *client.NetworkGameClient
	scheme ControlScheme

	cam        camera
	arena      *ArenaRenderer
	characters *CharacterRenderer
	tracers    TracerRenderer

	keys    keyTracker
	showHUD bool
}

func NewViewer(game *client.NetworkGameClient, world *core.StaticWorld, scheme ControlScheme) *Viewer {
	return &Viewer{
		game:       game,
		scheme:     scheme,
		cam:        newCamera(ScreenWidth, ScreenHeight, core.ArenaHalfExtent),
		arena:      NewArenaRenderer(world),
		characters: NewCharacterRenderer(game.Predictor().LocalID()),
		showHUD:    true,
	}
}

// Update 推进一个 tick
func (v *Viewer) Update() error {
	if v.keys.JustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if v.keys.JustPressed(ebiten.KeyTab) {
		v.showHUD = !v.showHUD
	}

	if err := v.game.Step(); err != nil {
		return err
	}

	if c := v.game.LastControls(); c.Fire {
		local := v.game.Predictor().Local()
		v.tracers.Add(local.RenderPosition(), c.Yaw)
	}
	v.tracers.Update()
	return nil
}

// Draw 绘制画面
func (v *Viewer) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{120, 60, 35, 255})

	v.arena.Draw(screen, v.cam)

	p := v.game.Predictor()
	chars := p.Characters()
	yaw := v.game.LastControls().Yaw
	for _, c := range chars {
		v.characters.Draw(screen, v.cam, c, yaw)
	}
	v.tracers.Draw(screen, v.cam)

	if v.showHUD {
		drawHUD(screen, v.hudInfo(len(chars)))
	}
}

func (v *Viewer) hudInfo(players int) hudInfo {
	p := v.game.Predictor()
	local := p.Local()
	tick, ok := p.LastAppliedTick()
	avg, max, n := p.Metrics().Summary()

	weapon := "-"
	if w := p.Weapons(); len(w) > 0 {
		weapon = w[0].Tag
	}
	return hudInfo{
		ClientID:  uint64(p.LocalID()),
		Tick:      tick,
		HasTick:   ok,
		Pending:   p.PendingInputs(),
		UDP:       v.game.Network().DatagramBound(),
		AvgDiff:   avg,
		MaxDiff:   max,
		Samples:   n,
		Weapon:    weapon,
		Players:   players,
		Scheme:    v.scheme,
		Position:  [3]float64(local.Position),
		Grounded:  local.State.Grounded,
		ActualTPS: ebiten.ActualTPS(),
	}
}

// Layout 设置屏幕布局
func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}
