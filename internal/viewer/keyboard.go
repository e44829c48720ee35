package viewer

import (
	"math"

	"marsarena/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
)

// ControlScheme 按键方案
type ControlScheme int

const (
	ControlWASD  ControlScheme = iota // WASD 移动，方向键转向，空格跳，F 开火
	ControlArrow                      // 方向键移动，Q/E 转向，右 Ctrl 跳，回车开火
)

func (c ControlScheme) String() string {
	switch c {
	case ControlWASD:
		return "WASD+空格"
	case ControlArrow:
		return "方向键+回车"
	}
	return "未知"
}

// 转向速度（弧度/秒）
const turnSpeed = 2.5

// KeyboardInput 每个 tick 读取一次键盘，yaw 在本地累积
type KeyboardInput struct {
	scheme ControlScheme
	dt     float64
	yaw    float64
	pitch  float64
}

func NewKeyboardInput(scheme ControlScheme, tickRate int) *KeyboardInput {
	return &KeyboardInput{scheme: scheme, dt: 1 / float64(tickRate)}
}

func (k *KeyboardInput) Sample() core.Controls {
	var c core.Controls
	var turnLeft, turnRight bool

	if k.scheme == ControlWASD {
		c.MoveForward = ebiten.IsKeyPressed(ebiten.KeyW)
		c.MoveBackward = ebiten.IsKeyPressed(ebiten.KeyS)
		c.MoveLeft = ebiten.IsKeyPressed(ebiten.KeyA)
		c.MoveRight = ebiten.IsKeyPressed(ebiten.KeyD)
		c.Jump = ebiten.IsKeyPressed(ebiten.KeySpace)
		c.Fire = ebiten.IsKeyPressed(ebiten.KeyF) || ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
		turnLeft = ebiten.IsKeyPressed(ebiten.KeyArrowLeft)
		turnRight = ebiten.IsKeyPressed(ebiten.KeyArrowRight)
	} else {
		c.MoveForward = ebiten.IsKeyPressed(ebiten.KeyArrowUp)
		c.MoveBackward = ebiten.IsKeyPressed(ebiten.KeyArrowDown)
		c.MoveLeft = ebiten.IsKeyPressed(ebiten.KeyArrowLeft)
		c.MoveRight = ebiten.IsKeyPressed(ebiten.KeyArrowRight)
		c.Jump = ebiten.IsKeyPressed(ebiten.KeyControlRight)
		c.Fire = ebiten.IsKeyPressed(ebiten.KeyEnter)
		turnLeft = ebiten.IsKeyPressed(ebiten.KeyQ)
		turnRight = ebiten.IsKeyPressed(ebiten.KeyE)
	}

	// yaw 绕 +Y，正方向为逆时针（俯视向左转）
	if turnLeft {
		k.yaw += turnSpeed * k.dt
	}
	if turnRight {
		k.yaw -= turnSpeed * k.dt
	}
	k.yaw = math.Remainder(k.yaw, 2*math.Pi)

	c.Yaw = k.yaw
	c.Pitch = k.pitch
	return c
}
