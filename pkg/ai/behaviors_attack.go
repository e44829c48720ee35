package ai

func condTriggerHeld(bb *Blackboard) bool {
	return bb.TriggerTicks > 0
}

func actHoldTrigger(bb *Blackboard) Status {
	bb.TriggerTicks--
	bb.Next.Fire = true
	return StatusSuccess
}

// actPullTrigger 开始一轮连发，俯仰角随机
func actPullTrigger(bb *Blackboard) Status {
	bb.TriggerTicks = bb.Config.BurstTicks - 1
	bb.Next.Fire = true
	bb.Next.Pitch = (bb.RNG.Float64() - 0.5) * 0.4
	return StatusSuccess
}

func newTriggerTree(cfg *BotConfig) Node {
	return Selector{
		Sequence{Condition(condTriggerHeld), Action(actHoldTrigger)},
		Chance{P: cfg.FireChance, Child: Action(actPullTrigger)},
	}
}
