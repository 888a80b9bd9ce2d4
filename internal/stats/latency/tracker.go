// Package latency 滚动窗口统计部分。
// 为处理延迟和网络延迟维护独立的滚动窗口，供周期性指标日志使用。
package latency

import (
	"sort"
	"sync"

	"polymarket-latency-recorder/internal/core/model"
)

// Stats 延迟统计快照（滚动窗口）
// 单位：毫秒。
type Stats struct {
	// Count 样本总数（累计，含已滑出窗口的）
	Count int64 `json:"count"`

	// ProcP50Ms 处理延迟 P50（毫秒）
	ProcP50Ms float64 `json:"proc_p50_ms"`
	// ProcP90Ms 处理延迟 P90（毫秒）
	ProcP90Ms float64 `json:"proc_p90_ms"`
	// ProcP99Ms 处理延迟 P99（毫秒）
	ProcP99Ms float64 `json:"proc_p99_ms"`

	// NetCount 网络延迟样本总数（仅交易所时间戳可解析的事件）
	NetCount int64 `json:"net_count"`
	// NetP50Ms 网络延迟 P50（毫秒）
	NetP50Ms float64 `json:"net_p50_ms"`
	// NetP90Ms 网络延迟 P90（毫秒）
	NetP90Ms float64 `json:"net_p90_ms"`
	// NetP99Ms 网络延迟 P99（毫秒）
	NetP99Ms float64 `json:"net_p99_ms"`
}

type rollingWindow struct {
	size  int
	buf   []int64
	pos   int
	count int64
	full  bool

	mu sync.Mutex
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{size: size, buf: make([]int64, 0, size)}
}

func (w *rollingWindow) add(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	if w.size <= 0 {
		return
	}

	if !w.full {
		w.buf = append(w.buf, v)
		if len(w.buf) == w.size {
			w.full = true
			w.pos = 0
		}
		return
	}

	w.buf[w.pos] = v
	w.pos++
	if w.pos >= w.size {
		w.pos = 0
	}
}

func (w *rollingWindow) snapshotQuantiles(qs ...float64) (count int64, values []int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	count = w.count
	if len(w.buf) == 0 {
		return count, make([]int64, len(qs))
	}

	tmp := make([]int64, len(w.buf))
	copy(tmp, w.buf)
	sort.Slice(tmp, func(i, j int) bool { return tmp[i] < tmp[j] })

	values = make([]int64, len(qs))
	n := len(tmp)
	for i, q := range qs {
		if q <= 0 {
			values[i] = tmp[0]
			continue
		}
		if q >= 1 {
			values[i] = tmp[n-1]
			continue
		}
		idx := int(float64(n-1) * q)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		values[i] = tmp[idx]
	}
	return count, values
}

// Tracker 延迟滚动统计追踪器
// 处理延迟和网络延迟各自维护独立窗口；网络延迟只在样本可计算时记录，
// 缺失样本不会被当作 0 混入统计。
type Tracker struct {
	// proc 处理延迟窗口（纳秒）
	proc *rollingWindow
	// net 网络延迟窗口（纳秒，可能为负）
	net *rollingWindow
}

// NewTracker 创建延迟统计追踪器
// 参数 windowSize: 滚动窗口大小（建议 10000），用于 P50/P90/P99
func NewTracker(windowSize int) *Tracker {
	return &Tracker{
		proc: newRollingWindow(windowSize),
		net:  newRollingWindow(windowSize),
	}
}

// Add 记录一条延迟样本
// 参数 sample: 延迟样本；HasNet 为 false 时只进处理延迟窗口
func (t *Tracker) Add(sample model.LatencySample) {
	t.proc.add(sample.ProcEndTsNs - sample.RecvTsNs)
	if sample.HasNet {
		t.net.add(int64(sample.NetLatencyMs * 1_000_000))
	}
}

// Snapshot 获取统计快照
func (t *Tracker) Snapshot() Stats {
	procCount, procQs := t.proc.snapshotQuantiles(0.50, 0.90, 0.99)
	netCount, netQs := t.net.snapshotQuantiles(0.50, 0.90, 0.99)

	return Stats{
		Count:     procCount,
		ProcP50Ms: float64(procQs[0]) / 1_000_000.0,
		ProcP90Ms: float64(procQs[1]) / 1_000_000.0,
		ProcP99Ms: float64(procQs[2]) / 1_000_000.0,
		NetCount:  netCount,
		NetP50Ms:  float64(netQs[0]) / 1_000_000.0,
		NetP90Ms:  float64(netQs[1]) / 1_000_000.0,
		NetP99Ms:  float64(netQs[2]) / 1_000_000.0,
	}
}
