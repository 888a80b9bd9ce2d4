// Package latency 实现多时间戳延迟计算与滚动统计。
// 处理延迟精确（两端都来自本机单调时钟）；网络/端到端延迟是 best-effort
// 估计，依赖交易所自报的未验证时间戳，精度只能做到诚实有界。
package latency

import (
	"strings"

	"polymarket-latency-recorder/internal/core/model"
	"polymarket-latency-recorder/internal/util/fastparse"
	"polymarket-latency-recorder/internal/util/timeutil"
)

// TsUnit 交易所时间戳单位
// feed 的 timestamp 字段格式上游不保证，单位作为可配置假设而不是硬约定
type TsUnit string

const (
	// UnitSeconds 秒
	UnitSeconds TsUnit = "s"
	// UnitMillis 毫秒（CLOB feed 的默认假设）
	UnitMillis TsUnit = "ms"
	// UnitMicros 微秒
	UnitMicros TsUnit = "us"
	// UnitNanos 纳秒
	UnitNanos TsUnit = "ns"
)

// ValidUnit 判断时间戳单位是否合法
func ValidUnit(u TsUnit) bool {
	switch u {
	case UnitSeconds, UnitMillis, UnitMicros, UnitNanos:
		return true
	}
	return false
}

// Calculator 延迟计算器
// 无可变状态，计算无副作用
type Calculator struct {
	// unit 交易所时间戳单位
	unit TsUnit
}

// NewCalculator 创建延迟计算器
// 参数 unit: 交易所时间戳单位；不合法时回退为毫秒
func NewCalculator(unit TsUnit) *Calculator {
	if !ValidUnit(unit) {
		unit = UnitMillis
	}
	return &Calculator{unit: unit}
}

// Compute 计算一条事件的延迟样本
// proc_latency_ms 恒可计算：proc_end - recv，两端同源单调时钟，构造上非负。
// net/e2e 仅当 exchTsRaw 可按配置单位解析为 epoch 时间戳时计算；
// 为空或不可解析时两者都标记缺失——缺失是预期结果，绝不伪造数值。
// 交易所时钟超前本机时结果可能为负，按原样保留，掩盖负值会丢失真实的
// 时钟偏差信息。
// 参数 recvNs: 本机接收时间戳（纳秒）
// 参数 procEndNs: 本机处理完成时间戳（纳秒）
// 参数 exchTsRaw: 交易所声明的时间戳原始值
// 返回: 延迟样本
func (c *Calculator) Compute(recvNs, procEndNs int64, exchTsRaw string) model.LatencySample {
	sample := model.LatencySample{
		RecvTsNs:      recvNs,
		ProcEndTsNs:   procEndNs,
		ExchTsRaw:     exchTsRaw,
		ProcLatencyMs: timeutil.DurationMs(recvNs, procEndNs),
	}

	exchMs, ok := c.parseExchTs(exchTsRaw)
	if !ok {
		return sample
	}

	sample.NetLatencyMs = float64(recvNs)/1e6 - exchMs
	sample.HasNet = true
	sample.E2ELatencyMs = float64(procEndNs)/1e6 - exchMs
	sample.HasE2E = true

	return sample
}

// parseExchTs 按配置单位解析交易所时间戳为 epoch 毫秒
// 参数 raw: 时间戳原始值
// 返回: epoch 毫秒和是否解析成功
func (c *Calculator) parseExchTs(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	v, err := fastparse.ParseInt(raw)
	if err != nil {
		// 部分消息的时间戳带小数（如 "1700000000000.5"），退一步按浮点解析
		f, ferr := fastparse.ParseFloat(raw)
		if ferr != nil {
			return 0, false
		}
		return c.toMillis(f), true
	}

	return c.toMillis(float64(v)), true
}

// toMillis 将配置单位下的时间戳值换算为毫秒
func (c *Calculator) toMillis(v float64) float64 {
	switch c.unit {
	case UnitSeconds:
		return v * 1000
	case UnitMicros:
		return v / 1000
	case UnitNanos:
		return v / 1_000_000
	default:
		return v
	}
}
