package client

import (
	"sort"

	"marsarena/pkg/core"

	"github.com/go-gl/mathgl/mgl64"
)

// InputHistory 本地已预测的输入，id 升序
type InputHistory struct {
	inputs []core.PlayerInput
}

func NewInputHistory() *InputHistory {
	return &InputHistory{}
}

// Append 追加输入；id 不递增时忽略
func (h *InputHistory) Append(in core.PlayerInput) {
	if n := len(h.inputs); n > 0 && in.ID <= h.inputs[n-1].ID {
		return
	}
	h.inputs = append(h.inputs, in)
}

// PruneBefore 删除 id < minID 的输入
func (h *InputHistory) PruneBefore(minID uint32) {
	i := sort.Search(len(h.inputs), func(i int) bool { return h.inputs[i].ID >= minID })
	if i > 0 {
		h.inputs = append(h.inputs[:0], h.inputs[i:]...)
	}
}

func (h *InputHistory) index(id uint32) (int, bool) {
	i := sort.Search(len(h.inputs), func(i int) bool { return h.inputs[i].ID >= id })
	return i, i < len(h.inputs) && h.inputs[i].ID == id
}

// Get 按 id 查找
func (h *InputHistory) Get(id uint32) (core.PlayerInput, bool) {
	i, ok := h.index(id)
	if !ok {
		return core.PlayerInput{}, false
	}
	return h.inputs[i], true
}

// After 返回 id > ack 的输入；ack 为 nil 时返回全部
func (h *InputHistory) After(ack *uint32) []core.PlayerInput {
	start := 0
	if ack != nil {
		a := *ack
		start = sort.Search(len(h.inputs), func(i int) bool { return h.inputs[i].ID > a })
	}
	out := make([]core.PlayerInput, len(h.inputs)-start)
	copy(out, h.inputs[start:])
	return out
}

// Latest 最新的 n 个输入，按 id 升序
func (h *InputHistory) Latest(n int) []core.PlayerInput {
	if n > len(h.inputs) {
		n = len(h.inputs)
	}
	if n <= 0 {
		return nil
	}
	out := make([]core.PlayerInput, n)
	copy(out, h.inputs[len(h.inputs)-n:])
	return out
}

// UpdateFinal 重放后刷新预测位置
func (h *InputHistory) UpdateFinal(id uint32, pos mgl64.Vec3) {
	if i, ok := h.index(id); ok {
		h.inputs[i].FinalPosition = pos
	}
}

func (h *InputHistory) Len() int {
	return len(h.inputs)
}
