package core

import "github.com/go-gl/mathgl/mgl64"

// Controls 一个模拟步内采样到的按键与视角
type Controls struct {
	MoveForward  bool
	MoveBackward bool
	MoveLeft     bool
	MoveRight    bool
	Jump         bool
	Fire         bool
	Yaw          float64 // 绕 +Y 轴的弧度
	Pitch        float64
}

// PlayerInput 带序号的玩家输入，客户端生成，随网络发送
type PlayerInput struct {
	ID            uint32  // 每个客户端严格递增
	ServerTickAck *uint32 // 客户端最近应用的服务器快照 tick
	Controls
	FinalPosition mgl64.Vec3 // 客户端预测得到的位置，用于偏差统计
}

// IsZero 没有任何移动/动作按键
func (c Controls) IsZero() bool {
	return !c.MoveForward && !c.MoveBackward && !c.MoveLeft && !c.MoveRight && !c.Jump && !c.Fire
}

// WishDir 根据按键与 yaw 计算世界空间的期望移动方向（已归一化，无输入时为零向量）
// 局部坐标系中前方为 -Z，右方为 +X
func (c Controls) WishDir() mgl64.Vec3 {
	var local mgl64.Vec3
	if c.MoveForward {
		local[2] -= 1
	}
	if c.MoveBackward {
		local[2] += 1
	}
	if c.MoveLeft {
		local[0] -= 1
	}
	if c.MoveRight {
		local[0] += 1
	}
	if local.Len() < MoveEpsilon {
		return mgl64.Vec3{}
	}
	world := mgl64.QuatRotate(c.Yaw, mgl64.Vec3{0, 1, 0}).Rotate(local)
	world[1] = 0
	return normalizeOrZero(world)
}

// WithoutFire 复制一份去掉开火标记的输入（服务器重放上一个输入时使用）
func (in PlayerInput) WithoutFire() PlayerInput {
	out := in
	out.Fire = false
	return out
}

func normalizeOrZero(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l < MoveEpsilon {
		return mgl64.Vec3{}
	}
	return v.Mul(1 / l)
}
