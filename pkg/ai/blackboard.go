package ai

import (
	"math/rand"

	"marsarena/pkg/core"

	"github.com/go-gl/mathgl/mgl64"
)

// Observation 机器人每个 tick 看到的本地角色状态
type Observation struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Grounded bool
}

type Blackboard struct {
	RNG    *rand.Rand
	Config *BotConfig

	Tick uint64
	Observation

	Next core.Controls

	// 朝向惯性
	Heading      float64
	HeadingTicks int

	// 卡住检测
	LastPosition mgl64.Vec3
	HasLast      bool
	StuckTicks   int

	// 连发剩余 tick
	TriggerTicks int
}

// Observe 记录新的观测并更新卡住计数
func (bb *Blackboard) Observe(obs Observation, wantsMove bool) {
	bb.Tick++
	if bb.HasLast && wantsMove {
		moved := obs.Position.Sub(bb.LastPosition)
		moved[1] = 0
		if moved.Len() < bb.Config.StuckDistance {
			bb.StuckTicks++
		} else {
			bb.StuckTicks = 0
		}
	} else {
		bb.StuckTicks = 0
	}
	bb.LastPosition = obs.Position
	bb.HasLast = true
	bb.Observation = obs
}

// ResetThink 每次思考前清空输出，朝向与计数跨 tick 保留
func (bb *Blackboard) ResetThink() {
	bb.Next = core.Controls{}
}
