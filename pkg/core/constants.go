package core

// 模拟频率（客户端与服务器必须一致）
const (
	TickRateHz     = 64
	FixedDeltaTime = 1.0 / TickRateHz
)

// 角色默认参数
const (
	DefaultGravity           = 3.71 // 火星重力
	DefaultCharacterRadius   = 0.5  // 碰撞球半径
	DefaultMoveSpeed         = 5.0
	DefaultGroundAccel       = 15.5
	DefaultAirAccel          = 4.0
	DefaultGroundDrag        = 5.9
	DefaultAirDrag           = 0.5
	DefaultJumpStrength      = 3.0
	DefaultMaxGroundDistance = 0.1
	DefaultMaxStepHeight     = 0.3
	DefaultMaxSlopeDegrees   = 45.0
)

// 碰撞求解参数
const (
	MaxSlideIterations = 4      // 扫掠-滑动最大迭代次数
	SkinWidth          = 0.0001 // 命中前退让距离，避免再次穿透
	MoveEpsilon        = 1e-6   // 剩余位移/速度低于此值时提前结束
)

// 出生点（默认竞技场楼梯底部上方）
var SpawnPosition = [3]float64{0, 2, 0}
