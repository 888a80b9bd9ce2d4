// Package gamma 负责从 gamma API 发现市场并提取 outcome token。
package gamma

import (
	"encoding/json"
)

// MarketPayload gamma /markets 响应中的单个市场
// API: GET /markets?slug={slug}
type MarketPayload struct {
	// Slug 市场标识
	Slug string `json:"slug"`
	// Question 市场问题文本
	Question string `json:"question"`
	// Active 市场是否活跃
	Active bool `json:"active"`
	// EnableOrderBook 是否启用 CLOB 订单簿
	EnableOrderBook bool `json:"enableOrderBook"`
	// ClobTokenIds outcome token 列表
	// gamma 通常返回“JSON 列表再编码成字符串”（如 "[\"123\",\"456\"]"），
	// 也观察到过裸数组，原样保留由 NormalizeTokenIDs 统一处理
	ClobTokenIds json.RawMessage `json:"clobTokenIds"`
	// ClobTokenId 单数形式的兼容字段（个别 payload 出现）
	ClobTokenId string `json:"clobTokenId"`
	// Outcomes 结果标签，编码方式与 ClobTokenIds 同样不稳定
	Outcomes json.RawMessage `json:"outcomes"`
}

// EventPayload gamma /events/slug/{slug} 响应
// 事件下挂若干市场，取第一个携带 token 的市场
type EventPayload struct {
	// Title 事件标题
	Title string `json:"title"`
	// Slug 事件标识
	Slug string `json:"slug"`
	// EnableOrderBook 是否启用 CLOB 订单簿
	EnableOrderBook bool `json:"enableOrderBook"`
	// Markets 事件下的市场列表
	Markets []MarketPayload `json:"markets"`
}
