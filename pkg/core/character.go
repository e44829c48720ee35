package core

import "github.com/go-gl/mathgl/mgl64"

// ClientID 连接的客户端标识，同时也是其角色的归属
type ClientID uint64

// CharacterState 角色的可变状态（每个连接一个）
type CharacterState struct {
	Owner        ClientID
	Velocity     mgl64.Vec3
	Grounded     bool
	Jumping      bool       // 起跳后上升中，竖直速度降到 0 以下前不做地面探测
	VisualOffset mgl64.Vec3 // 纠错后的视觉偏移，仅客户端渲染使用
}

// IsLocallyControlled 判断角色是否属于本地玩家
func (s *CharacterState) IsLocallyControlled(local ClientID) bool {
	return s.Owner == local
}

// CharacterConstants 角色调参，生成后不可修改
type CharacterConstants struct {
	MoveSpeed         float64
	GroundAccel       float64
	AirAccel          float64
	GroundDrag        float64
	AirDrag           float64
	JumpStrength      float64
	Gravity           float64
	Radius            float64
	MaxGroundDistance float64
	MaxStepHeight     float64
	MaxSlopeDegrees   float64
}

// DefaultConstants 返回默认角色参数
func DefaultConstants() CharacterConstants {
	return CharacterConstants{
		MoveSpeed:         DefaultMoveSpeed,
		GroundAccel:       DefaultGroundAccel,
		AirAccel:          DefaultAirAccel,
		GroundDrag:        DefaultGroundDrag,
		AirDrag:           DefaultAirDrag,
		JumpStrength:      DefaultJumpStrength,
		Gravity:           DefaultGravity,
		Radius:            DefaultCharacterRadius,
		MaxGroundDistance: DefaultMaxGroundDistance,
		MaxStepHeight:     DefaultMaxStepHeight,
		MaxSlopeDegrees:   DefaultMaxSlopeDegrees,
	}
}

// Character 一个角色的完整模拟数据
type Character struct {
	State     CharacterState
	Position  mgl64.Vec3
	Constants CharacterConstants
}

// NewCharacter 在指定位置生成角色
func NewCharacter(owner ClientID, position mgl64.Vec3, constants CharacterConstants) *Character {
	return &Character{
		State:     CharacterState{Owner: owner},
		Position:  position,
		Constants: constants,
	}
}

// RenderPosition 渲染位置 = 模拟位置 + 视觉偏移
func (c *Character) RenderPosition() mgl64.Vec3 {
	return c.Position.Add(c.State.VisualOffset)
}

// MoveTowards 以不超过 maxDelta 的步长把 current 移向 target
func MoveTowards(current, target mgl64.Vec3, maxDelta float64) mgl64.Vec3 {
	to := target.Sub(current)
	dist := to.Len()
	if dist <= maxDelta {
		return target
	}
	if dist > 0 {
		return current.Add(to.Mul(maxDelta / dist))
	}
	return current
}
