package server

import (
	"sort"

	"marsarena/pkg/core"
)

// InputBuffer 单个客户端待处理的输入，按 id 升序、无重复，超出容量丢最旧的
type InputBuffer struct {
	capacity int
	inputs   []core.PlayerInput
}

// NewInputBuffer 创建容量为 capacity 的输入缓冲
func NewInputBuffer(capacity int) *InputBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &InputBuffer{
		capacity: capacity,
		inputs:   make([]core.PlayerInput, 0, capacity+1),
	}
}

// Insert 按 id 有序插入；重复 id 被忽略。返回是否插入
func (b *InputBuffer) Insert(in core.PlayerInput) bool {
	// 第一个 id 大于新输入的位置
	pos := sort.Search(len(b.inputs), func(i int) bool { return b.inputs[i].ID > in.ID })
	if pos > 0 && b.inputs[pos-1].ID >= in.ID {
		return false
	}

	b.inputs = append(b.inputs, core.PlayerInput{})
	copy(b.inputs[pos+1:], b.inputs[pos:])
	b.inputs[pos] = in

	if len(b.inputs) > b.capacity {
		b.inputs = append(b.inputs[:0], b.inputs[1:]...)
	}
	return true
}

// Len 当前缓冲的输入数
func (b *InputBuffer) Len() int {
	return len(b.inputs)
}

// Drain 取出全部输入（升序）并清空缓冲
func (b *InputBuffer) Drain() []core.PlayerInput {
	if len(b.inputs) == 0 {
		return nil
	}
	out := make([]core.PlayerInput, len(b.inputs))
	copy(out, b.inputs)
	b.inputs = b.inputs[:0]
	return out
}

// IDs 当前缓冲中的输入 id
func (b *InputBuffer) IDs() []uint32 {
	ids := make([]uint32, len(b.inputs))
	for i, in := range b.inputs {
		ids[i] = in.ID
	}
	return ids
}
