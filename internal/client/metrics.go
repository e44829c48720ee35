package client

import (
	"log"
	"sync"
	"time"
)

// NetworkMetrics 预测位置与权威位置的偏差统计，周期性打印后清零
type NetworkMetrics struct {
	mu       sync.Mutex
	interval time.Duration
	lastLog  time.Time

	sum   float64
	max   float64
	count int
}

func NewNetworkMetrics(interval time.Duration) *NetworkMetrics {
	return &NetworkMetrics{interval: interval}
}

// Record 记录一次偏差（米）
func (m *NetworkMetrics) Record(diff float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sum += diff
	m.count++
	if diff > m.max {
		m.max = diff
	}
}

// Summary 当前窗口的平均值、最大值和样本数
func (m *NetworkMetrics) Summary() (avg, max float64, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count > 0 {
		avg = m.sum / float64(m.count)
	}
	return avg, m.max, m.count
}

// MaybeLog 到达间隔时打印并清零，返回是否打印
func (m *NetworkMetrics) MaybeLog(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLog.IsZero() {
		m.lastLog = now
		return false
	}
	if now.Sub(m.lastLog) < m.interval {
		return false
	}
	m.lastLog = now
	if m.count > 0 {
		log.Printf("预测偏差: 平均 %.4f m, 最大 %.4f m, 样本 %d", m.sum/float64(m.count), m.max, m.count)
	}
	m.sum, m.max, m.count = 0, 0, 0
	return true
}
