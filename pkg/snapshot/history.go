package snapshot

import "time"

// History 按时间窗口保留的完整快照，用作差量基线
type History struct {
	windowTicks uint32
	entries     []TickSnapshot // tick 升序
}

// NewHistory 以 tick 数为窗口创建历史
func NewHistory(windowTicks uint32) *History {
	if windowTicks == 0 {
		windowTicks = 1
	}
	return &History{windowTicks: windowTicks}
}

// NewHistoryForDuration 根据时长和 tick 频率计算窗口
func NewHistoryForDuration(window time.Duration, tickRateHz int) *History {
	ticks := uint32(window.Seconds() * float64(tickRateHz))
	return NewHistory(ticks)
}

// Push 保存一个完整快照并裁剪窗口外的旧快照。tick 不递增的快照被忽略
func (h *History) Push(s TickSnapshot) {
	if s.IsDiff() {
		return
	}
	if n := len(h.entries); n > 0 && s.Tick <= h.entries[n-1].Tick {
		return
	}
	h.entries = append(h.entries, s.Clone())
	h.Prune(s.Tick)
}

// Prune 移除 tick 早于 latest-window 的快照
func (h *History) Prune(latest uint32) {
	if latest < h.windowTicks {
		return
	}
	oldest := latest - h.windowTicks
	i := 0
	for i < len(h.entries) && h.entries[i].Tick < oldest {
		i++
	}
	if i > 0 {
		h.entries = append(h.entries[:0], h.entries[i:]...)
	}
}

// Find 按 tick 查找快照
func (h *History) Find(tick uint32) (TickSnapshot, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Tick == tick {
			return h.entries[i], true
		}
		if h.entries[i].Tick < tick {
			break
		}
	}
	return TickSnapshot{}, false
}

// Latest 最新的快照
func (h *History) Latest() (TickSnapshot, bool) {
	if len(h.entries) == 0 {
		return TickSnapshot{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len 当前保留的快照数
func (h *History) Len() int {
	return len(h.entries)
}
