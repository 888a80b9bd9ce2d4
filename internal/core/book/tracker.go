// Package book 维护每个 outcome token 的最新订单簿状态。
// 使用单写者模式避免锁和竞态条件：状态只由会话的接收循环串行修改。
package book

import (
	"polymarket-latency-recorder/internal/core/model"
)

// Tracker 订单簿状态追踪器（单写者）
// 注意：本结构体默认由会话单 goroutine 写入；若要跨 goroutine 读，
// 请使用 Apply 返回的值快照，不要持有内部指针。
type Tracker struct {
	// states 按 asset_id 缓存订单簿状态，首个事件到达时惰性创建
	states map[string]*model.BookState
}

// NewTracker 创建订单簿状态追踪器
func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]*model.BookState),
	}
}

// Apply 应用一条已解码的订单簿事件
// book 快照无条件替换该 asset_id 的两侧（快照为准，快照缺某侧则该侧清空）；
// price_change 只更新事件中实际携带的一侧，未提及的一侧保持原值。
// 事件按会话交付顺序应用，后到的更新总是覆盖先到的同侧值，从不回滚；
// 重连后的首个快照会静默覆盖陈旧状态，输出流中可能出现可见的不连续，
// 这是既定行为而不是需要掩盖的缺陷。
// 参数 ev: 已解码事件（unknown 事件不携带订单簿数据，原样返回当前状态）
// 返回: 应用后该 asset_id 的状态值快照
func (t *Tracker) Apply(ev *model.FeedEvent) model.BookState {
	st, ok := t.states[ev.AssetID]
	if !ok {
		st = &model.BookState{AssetID: ev.AssetID}
		t.states[ev.AssetID] = st
	}

	switch ev.Type {
	case model.EventBook:
		st.BestBid, st.HasBid = ev.Bid, ev.HasBid
		st.BestAsk, st.HasAsk = ev.Ask, ev.HasAsk
	case model.EventPriceChange:
		if ev.HasBid {
			st.BestBid, st.HasBid = ev.Bid, true
		}
		if ev.HasAsk {
			st.BestAsk, st.HasAsk = ev.Ask, true
		}
	}

	return *st
}

// Get 获取指定 asset_id 的当前状态
// 参数 assetID: outcome token 标识
// 返回: 状态值快照和是否存在
func (t *Tracker) Get(assetID string) (model.BookState, bool) {
	st, ok := t.states[assetID]
	if !ok {
		return model.BookState{}, false
	}
	return *st, true
}

// Size 获取已追踪的 token 数量
func (t *Tracker) Size() int {
	return len(t.states)
}
