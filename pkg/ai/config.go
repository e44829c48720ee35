package ai

// BotConfig 机器人的行为参数
type BotConfig struct {
	// ThinkIntervalTicks 思考间隔（tick），期间沿用上一次的移动输入
	ThinkIntervalTicks int

	// MistakeRate 每次思考时随机失误的概率 (0.0-1.0)
	MistakeRate float64

	// 游荡时保持一个朝向的 tick 范围
	WanderMinTicks int
	WanderMaxTicks int

	// EdgeDistance 离原点超过该水平距离（任一轴）时转向中心
	EdgeDistance float64

	// 连续 StuckTicks 个 tick 水平位移都小于 StuckDistance 视为卡住
	StuckTicks    int
	StuckDistance float64

	// FireChance 每 tick 扣下扳机的概率，扣下后连发 BurstTicks
	FireChance float64
	BurstTicks int
}

// 预设配置：普通
var BotConfigNormal = BotConfig{
	ThinkIntervalTicks: 16, // 0.25s
	MistakeRate:        0.05,
	WanderMinTicks:     64,
	WanderMaxTicks:     192,
	EdgeDistance:       3.2,
	StuckTicks:         12,
	StuckDistance:      0.002,
	FireChance:         0.01,
	BurstTicks:         8,
}

// 预设配置：好斗，反应更快、开火更频繁
var BotConfigAggressive = BotConfig{
	ThinkIntervalTicks: 4,
	MistakeRate:        0,
	WanderMinTicks:     32,
	WanderMaxTicks:     96,
	EdgeDistance:       3.5,
	StuckTicks:         6,
	StuckDistance:      0.002,
	FireChance:         0.05,
	BurstTicks:         16,
}
