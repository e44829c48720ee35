package ai

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

func condStuck(bb *Blackboard) bool {
	return bb.StuckTicks >= bb.Config.StuckTicks
}

// actUnstick 跳一下并转向约 90 度
func actUnstick(bb *Blackboard) Status {
	turn := math.Pi / 2
	if bb.RNG.Intn(2) == 0 {
		turn = -turn
	}
	bb.Heading = wrapAngle(bb.Heading + turn + (bb.RNG.Float64()-0.5)*0.5)
	bb.HeadingTicks = bb.Config.WanderMinTicks
	bb.StuckTicks = 0

	bb.Next.Yaw = bb.Heading
	bb.Next.MoveForward = true
	bb.Next.Jump = true
	return StatusSuccess
}

func condNearEdge(bb *Blackboard) bool {
	p := bb.Position
	return math.Abs(p.X()) > bb.Config.EdgeDistance || math.Abs(p.Z()) > bb.Config.EdgeDistance
}

// actTurnToCenter 朝原点方向走，带一点随机偏角
func actTurnToCenter(bb *Blackboard) Status {
	toCenter := mgl64.Vec3{-bb.Position.X(), 0, -bb.Position.Z()}
	bb.Heading = wrapAngle(YawToward(toCenter) + (bb.RNG.Float64()-0.5)*0.6)
	bb.HeadingTicks = bb.Config.WanderMinTicks

	bb.Next.Yaw = bb.Heading
	bb.Next.MoveForward = true
	return StatusSuccess
}

// actWander 保持朝向一段时间后随机换向
func actWander(bb *Blackboard) Status {
	if bb.HeadingTicks > 0 {
		bb.HeadingTicks -= bb.Config.ThinkIntervalTicks
	} else {
		bb.Heading = wrapAngle(bb.RNG.Float64() * 2 * math.Pi)
		span := bb.Config.WanderMaxTicks - bb.Config.WanderMinTicks
		bb.HeadingTicks = bb.Config.WanderMinTicks
		if span > 0 {
			bb.HeadingTicks += bb.RNG.Intn(span + 1)
		}
	}

	bb.Next.Yaw = bb.Heading
	bb.Next.MoveForward = true
	// 偶尔侧移
	switch bb.RNG.Intn(8) {
	case 0:
		bb.Next.MoveLeft = true
	case 1:
		bb.Next.MoveRight = true
	}
	return StatusRunning
}

// YawToward 使前方（局部 -Z）指向 dir 的 yaw
func YawToward(dir mgl64.Vec3) float64 {
	return math.Atan2(-dir.X(), -dir.Z())
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
