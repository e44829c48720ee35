package ai

// Status 节点执行状态
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusRunning:
		return "running"
	}
	return "unknown"
}

// Node 行为树节点
type Node interface {
	Tick(bb *Blackboard) Status
}

// Sequence 顺序节点：遇到非 Success 停止，全 Success 才 Success
type Sequence []Node

func (s Sequence) Tick(bb *Blackboard) Status {
	for _, child := range s {
		if status := child.Tick(bb); status != StatusSuccess {
			return status
		}
	}
	return StatusSuccess
}

// Selector 选择节点：遇到非 Failure 停止，全 Failure 才 Failure
type Selector []Node

func (s Selector) Tick(bb *Blackboard) Status {
	for _, child := range s {
		if status := child.Tick(bb); status != StatusFailure {
			return status
		}
	}
	return StatusFailure
}

// Action 动作节点
type Action func(bb *Blackboard) Status

func (a Action) Tick(bb *Blackboard) Status {
	return a(bb)
}

// Condition 条件节点
type Condition func(bb *Blackboard) bool

func (c Condition) Tick(bb *Blackboard) Status {
	if c(bb) {
		return StatusSuccess
	}
	return StatusFailure
}

// Inverter 交换 Success 与 Failure
type Inverter struct {
	Child Node
}

func (n Inverter) Tick(bb *Blackboard) Status {
	switch status := n.Child.Tick(bb); status {
	case StatusSuccess:
		return StatusFailure
	case StatusFailure:
		return StatusSuccess
	default:
		return status
	}
}

// Chance 以概率 P 执行子节点，否则 Failure
type Chance struct {
	P     float64
	Child Node
}

func (n Chance) Tick(bb *Blackboard) Status {
	if bb.RNG == nil || bb.RNG.Float64() >= n.P {
		return StatusFailure
	}
	return n.Child.Tick(bb)
}
