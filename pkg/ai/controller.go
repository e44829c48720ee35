package ai

import (
	"math/rand"

	"marsarena/pkg/core"
)

// BotController 用行为树生成一个客户端的输入，供无界面客户端和压测使用
type BotController struct {
	ID     core.ClientID
	rnd    *rand.Rand
	config *BotConfig

	thinkCounter int
	cached       core.Controls

	blackboard Blackboard
	movement   Node
	trigger    Node
}

// NewBotController 同样的 seed 和观测序列产生同样的输入
func NewBotController(id core.ClientID, config *BotConfig, seed int64) *BotController {
	if config == nil {
		config = &BotConfigNormal
	}
	rnd := rand.New(rand.NewSource(seed + int64(id)))

	c := &BotController{
		ID:           id,
		rnd:          rnd,
		config:       config,
		thinkCounter: config.ThinkIntervalTicks,
	}
	c.blackboard = Blackboard{RNG: rnd, Config: config}

	c.movement = Selector{
		Sequence{Condition(condStuck), Action(actUnstick)},
		Sequence{Condition(condNearEdge), Action(actTurnToCenter)},
		Action(actWander),
	}
	c.trigger = newTriggerTree(config)
	return c
}

// Decide 每个 tick 调用一次
func (c *BotController) Decide(obs Observation) core.Controls {
	bb := &c.blackboard
	bb.Observe(obs, c.cached.MoveForward || c.cached.MoveLeft || c.cached.MoveRight)

	force := condStuck(bb)
	c.thinkCounter++
	if force || c.thinkCounter >= c.config.ThinkIntervalTicks {
		c.think()
	} else {
		// 跳跃只保持一个 tick
		c.cached.Jump = false
	}

	out := c.cached
	bb.Next = core.Controls{}
	if c.trigger.Tick(bb) == StatusSuccess {
		out.Fire = bb.Next.Fire
		out.Pitch = bb.Next.Pitch
	}
	return out
}

func (c *BotController) think() {
	bb := &c.blackboard
	c.thinkCounter = 0
	bb.ResetThink()
	_ = c.movement.Tick(bb)

	// 随机失误
	if c.config.MistakeRate > 0 && c.rnd.Float64() < c.config.MistakeRate {
		switch c.rnd.Intn(3) {
		case 0:
			// 发呆
			bb.Next = core.Controls{Yaw: bb.Next.Yaw}
		case 1:
			// 看错方向
			bb.Next.Yaw = wrapAngle(bb.Next.Yaw + (c.rnd.Float64()-0.5)*2)
		case 2:
			// 不失误
		}
	}
	c.cached = bb.Next
}

func (c *BotController) Config() *BotConfig {
	return c.config
}

// SetConfig 切换配置，下一个 tick 重新思考
func (c *BotController) SetConfig(config *BotConfig) {
	if config == nil {
		return
	}
	c.config = config
	c.blackboard.Config = config
	c.trigger = newTriggerTree(config)
	c.thinkCounter = config.ThinkIntervalTicks
}
