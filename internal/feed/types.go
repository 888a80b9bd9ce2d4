// Package feed 定义 Polymarket CLOB market 频道的消息类型。
package feed

import (
	"bytes"
	"encoding/json"
)

// SubscribeRequest CLOB market 频道订阅请求
// 连接建立后立即发送，列出本市场全部 outcome token 的 asset_id
type SubscribeRequest struct {
	// Type 频道类型，固定为 MARKET
	Type string `json:"type"`
	// AssetsIDs 订阅的 asset_id 列表
	AssetsIDs []string `json:"assets_ids"`
}

// rawString 兼容字符串和数字两种 JSON 编码的字段
// feed 的 timestamp 字段在不同消息里既出现过 "1700000000000" 也出现过裸数字，
// 解码时统一还原为原始字面量字符串，不做格式校验
type rawString string

// UnmarshalJSON 实现宽容解码
// 带引号取引号内内容，不带引号取字面量本身
func (s *rawString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = rawString(v)
		return nil
	}
	*s = rawString(data)
	return nil
}

// wsMessage CLOB market 频道单条消息
// book 快照和 price_change 增量共用同一外层结构
type wsMessage struct {
	// EventType 事件类型: book, price_change；未知类型按 unknown 处理
	EventType string `json:"event_type"`
	// AltType 部分消息用 type 字段声明事件类型（与 EventType 二选一）
	AltType string `json:"type"`
	// Market 市场（condition id），本记录器不使用
	Market string `json:"market"`
	// AssetID outcome token 标识
	AssetID string `json:"asset_id"`
	// Timestamp 交易所声明的时间戳，原样透传
	Timestamp rawString `json:"timestamp"`
	// Bids 买盘档位（book 快照）
	Bids []priceLevel `json:"bids"`
	// Asks 卖盘档位（book 快照）
	Asks []priceLevel `json:"asks"`
	// PriceChanges 档位变更列表（price_change 增量）
	PriceChanges []priceChange `json:"price_changes"`
}

// priceLevel 订单簿单个档位
type priceLevel struct {
	// Price 价格（小数字符串）
	Price string `json:"price"`
	// Size 数量（小数字符串）
	Size string `json:"size"`
}

// priceChange 单条档位变更
// 每条变更自带变更后的最优买卖价，增量更新只依赖这两个字段
type priceChange struct {
	// AssetID outcome token 标识；为空时继承外层 asset_id
	AssetID string `json:"asset_id"`
	// Price 变更档位价格
	Price string `json:"price"`
	// Size 变更档位数量
	Size string `json:"size"`
	// Side 方向: BUY, SELL
	Side string `json:"side"`
	// BestBid 变更后的最优买价；为空表示本条不携带买侧
	BestBid string `json:"best_bid"`
	// BestAsk 变更后的最优卖价；为空表示本条不携带卖侧
	BestAsk string `json:"best_ask"`
}

// eventType 取消息声明的事件类型
// 优先 event_type，缺失时回退 type 字段
func (m *wsMessage) eventType() string {
	if m.EventType != "" {
		return m.EventType
	}
	return m.AltType
}
