// Package model 定义记录器中使用的核心数据结构。
// 包含市场描述、订单簿事件、订单簿状态和输出行等核心类型。
package model

import (
	"polymarket-latency-recorder/internal/util/fastparse"
)

// EventType 订单簿事件类型
type EventType string

const (
	// EventBook 全量快照事件
	// feed 重述某个 token 当前的完整订单簿状态，两侧均以快照为准
	EventBook EventType = "book"
	// EventPriceChange 增量更新事件
	// 只更新事件中实际出现的一侧，未提及的一侧保持原值
	EventPriceChange EventType = "price_change"
	// EventUnknown 未知事件
	// 结构合法但类型不在已知集合内，记录日志后丢弃，不是错误
	EventUnknown EventType = "unknown"
)

// Market 单个预测市场的描述
// 启动时由市场发现构建一次，进程生命周期内不可变
type Market struct {
	// Slug 市场标识，如 wta-uchijim-bondar-2026-02-13
	Slug string
	// Question 市场问题文本
	Question string
	// AssetIDs 市场下所有 outcome token 的 asset_id（去重，保持发现顺序）
	AssetIDs []string
	// Outcomes 与 AssetIDs 对应的结果标签（可能短于 AssetIDs）
	Outcomes []string
	// CLOBEnabled 是否启用 CLOB 订单簿
	CLOBEnabled bool
}

// FeedEvent 解码后的单条订单簿事件（瞬态，一条消息一个或多个）
type FeedEvent struct {
	// Type 事件类型: book, price_change, unknown
	Type EventType
	// RawType feed 声明的原始 event_type 字符串（unknown 时用于日志）
	RawType string
	// AssetID outcome token 标识
	// book/price_change 事件必有；unknown 事件可能为空
	AssetID string
	// ExchTsRaw 交易所声明的时间戳原始值（字符串，格式不保证）
	ExchTsRaw string
	// Bid 事件携带的最优买价；HasBid 为 false 时无意义
	Bid float64
	// HasBid 事件是否携带买侧数据
	HasBid bool
	// Ask 事件携带的最优卖价；HasAsk 为 false 时无意义
	Ask float64
	// HasAsk 事件是否携带卖侧数据
	HasAsk bool
	// RecvUnixNs 本机收到所属消息的时间戳（纳秒，单调安全）
	RecvUnixNs int64
}

// HasBookData 判断事件是否携带订单簿数据
// unknown 事件不携带任何订单簿数据
func (e *FeedEvent) HasBookData() bool {
	return e.Type == EventBook || e.Type == EventPriceChange
}

// BookState 单个 outcome token 的订单簿状态
// 只保存最优买卖价；缺失侧用显式存在标志表达，绝不用 0 兜底
type BookState struct {
	// AssetID outcome token 标识
	AssetID string
	// BestBid 最优买价；HasBid 为 false 时无意义
	BestBid float64
	// HasBid 买侧是否已知
	HasBid bool
	// BestAsk 最优卖价；HasAsk 为 false 时无意义
	BestAsk float64
	// HasAsk 卖侧是否已知
	HasAsk bool
}

// Mid 计算中间价
// 仅当两侧都存在时有定义，公式 (BestBid + BestAsk) / 2
// 每次读取时计算，不缓存，避免单侧更新后读到陈旧值
// 返回: 中间价和是否有定义
func (b *BookState) Mid() (float64, bool) {
	if !b.HasBid || !b.HasAsk {
		return 0, false
	}
	return (b.BestBid + b.BestAsk) / 2, true
}

// LatencySample 单条事件的延迟样本（瞬态）
type LatencySample struct {
	// RecvTsNs 本机接收时间戳（纳秒）
	RecvTsNs int64
	// ProcEndTsNs 本机处理完成时间戳（纳秒）
	ProcEndTsNs int64
	// ExchTsRaw 交易所声明的时间戳原始值（透传，可能为空或不可解析）
	ExchTsRaw string
	// ProcLatencyMs 处理延迟（毫秒），恒可计算且非负
	ProcLatencyMs float64
	// NetLatencyMs 网络延迟估计（毫秒）；HasNet 为 false 时无意义
	// 时钟偏差可能导致负值，按原样保留
	NetLatencyMs float64
	// HasNet 网络延迟是否可计算
	HasNet bool
	// E2ELatencyMs 端到端延迟估计（毫秒）；HasE2E 为 false 时无意义
	E2ELatencyMs float64
	// HasE2E 端到端延迟是否可计算
	HasE2E bool
}

// CSVHeader 输出 CSV 的列名，顺序固定不可变
var CSVHeader = []string{
	"utc_iso",
	"slug",
	"question",
	"asset_id",
	"event_type",
	"best_bid",
	"best_ask",
	"mid",
	"exch_ts_raw",
	"recv_ts_ns",
	"proc_end_ts_ns",
	"proc_latency_ms",
	"net_latency_ms",
	"e2e_latency_ms",
}

// OutputRow 单条输出记录
// 每处理一条事件构造一行，构造后不可变；交给 emitter 后核心不再持有引用
type OutputRow struct {
	// UTCISO 本机处理时刻的 ISO-8601 UTC 时间串
	UTCISO string
	// Slug 市场标识
	Slug string
	// Question 市场问题文本
	Question string
	// AssetID outcome token 标识
	AssetID string
	// EventType 事件类型字符串
	EventType string
	// Book 事件处理后该 token 的订单簿状态快照
	Book BookState
	// Latency 该事件的延迟样本
	Latency LatencySample
}

// Record 按固定列序渲染 CSV 字段
// 缺失的数值一律渲染为空字符串，绝不用 "0" 代替未知
// 返回: 与 CSVHeader 对齐的字段切片
func (r *OutputRow) Record() []string {
	bid, ask, mid := "", "", ""
	if r.Book.HasBid {
		bid = fastparse.FormatFloat(r.Book.BestBid, -1)
	}
	if r.Book.HasAsk {
		ask = fastparse.FormatFloat(r.Book.BestAsk, -1)
	}
	if m, ok := r.Book.Mid(); ok {
		mid = fastparse.FormatFloat(m, -1)
	}

	net, e2e := "", ""
	if r.Latency.HasNet {
		net = fastparse.FormatFloat(r.Latency.NetLatencyMs, 3)
	}
	if r.Latency.HasE2E {
		e2e = fastparse.FormatFloat(r.Latency.E2ELatencyMs, 3)
	}

	return []string{
		r.UTCISO,
		r.Slug,
		r.Question,
		r.AssetID,
		r.EventType,
		bid,
		ask,
		mid,
		r.Latency.ExchTsRaw,
		fastparse.FormatInt(r.Latency.RecvTsNs),
		fastparse.FormatInt(r.Latency.ProcEndTsNs),
		fastparse.FormatFloat(r.Latency.ProcLatencyMs, 3),
		net,
		e2e,
	}
}
