// Package latency 延迟计算器属性测试
package latency

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCalculator_ProcLatency_Property 测试处理延迟属性
// 属性: proc_latency_ms 恒等于 (procEnd - recv) / 1e6，
// procEnd >= recv 时非负
func TestCalculator_ProcLatency_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	c := NewCalculator(UnitMillis)

	properties.Property("处理延迟精确且非负", prop.ForAll(
		func(recvNs int64, deltaNs int64) bool {
			procEndNs := recvNs + deltaNs

			s := c.Compute(recvNs, procEndNs, "")
			want := float64(deltaNs) / 1e6

			return math.Abs(s.ProcLatencyMs-want) <= 1e-9 && s.ProcLatencyMs >= 0
		},
		gen.Int64Range(0, 1<<55),
		gen.Int64Range(0, 10_000_000_000), // 0 - 10s
	))

	properties.TestingRun(t)
}

// TestCalculator_NetLatency_Property 测试网络延迟属性
// 属性: 可解析时间戳时 net = recv_ms - exch_ms、e2e = proc_end_ms - exch_ms，
// 且 e2e - net == proc 在浮点误差内成立
func TestCalculator_NetLatency_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	c := NewCalculator(UnitMillis)

	properties.Property("三类延迟自洽", prop.ForAll(
		func(exchMs int64, netMs int64, procNs int64) bool {
			recvNs := (exchMs + netMs) * 1_000_000
			procEndNs := recvNs + procNs

			s := c.Compute(recvNs, procEndNs, fmt.Sprintf("%d", exchMs))
			if !s.HasNet || !s.HasE2E {
				return false
			}

			if math.Abs(s.NetLatencyMs-float64(netMs)) > 1e-3 {
				return false
			}
			// 三个延迟共享同一 recv/proc_end，关系必须自洽
			return math.Abs((s.E2ELatencyMs-s.NetLatencyMs)-s.ProcLatencyMs) <= 1e-3
		},
		gen.Int64Range(1600000000000, 1800000000000), // exchMs
		gen.Int64Range(-1000, 1000),                  // netMs（可为负）
		gen.Int64Range(0, 100_000_000),               // procNs 0-100ms
	))

	properties.TestingRun(t)
}
