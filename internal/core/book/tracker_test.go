// Package book 订单簿状态追踪器测试
package book

import (
	"testing"

	"polymarket-latency-recorder/internal/core/model"
)

func bookEvent(assetID string, bid, ask float64, hasBid, hasAsk bool) *model.FeedEvent {
	return &model.FeedEvent{
		Type: model.EventBook, AssetID: assetID,
		Bid: bid, HasBid: hasBid, Ask: ask, HasAsk: hasAsk,
	}
}

func changeEvent(assetID string, bid, ask float64, hasBid, hasAsk bool) *model.FeedEvent {
	return &model.FeedEvent{
		Type: model.EventPriceChange, AssetID: assetID,
		Bid: bid, HasBid: hasBid, Ask: ask, HasAsk: hasAsk,
	}
}

// TestTracker_BookReplacesBothSides 测试快照无条件替换两侧
func TestTracker_BookReplacesBothSides(t *testing.T) {
	tr := NewTracker()

	st := tr.Apply(bookEvent("111", 0.50, 0.52, true, true))
	if !st.HasBid || st.BestBid != 0.50 || !st.HasAsk || st.BestAsk != 0.52 {
		t.Fatalf("首个快照: %+v", st)
	}

	// 第二个快照缺卖侧：卖侧必须清空而不是保留旧值
	st = tr.Apply(bookEvent("111", 0.48, 0, true, false))
	if !st.HasBid || st.BestBid != 0.48 {
		t.Errorf("BestBid = %v (has=%v), want 0.48", st.BestBid, st.HasBid)
	}
	if st.HasAsk {
		t.Errorf("HasAsk = true, want false（快照缺该侧应清空）")
	}
}

// TestTracker_PriceChangePreservesUntouchedSide 测试增量只动携带侧
func TestTracker_PriceChangePreservesUntouchedSide(t *testing.T) {
	tr := NewTracker()
	tr.Apply(bookEvent("111", 0.50, 0.52, true, true))

	// 只带买侧的增量：卖侧保持原值
	st := tr.Apply(changeEvent("111", 0.51, 0, true, false))
	if !st.HasBid || st.BestBid != 0.51 {
		t.Errorf("BestBid = %v (has=%v), want 0.51", st.BestBid, st.HasBid)
	}
	if !st.HasAsk || st.BestAsk != 0.52 {
		t.Errorf("BestAsk = %v (has=%v), want 0.52（未提及侧应保留）", st.BestAsk, st.HasAsk)
	}

	// 只带卖侧的增量
	st = tr.Apply(changeEvent("111", 0, 0.53, false, true))
	if !st.HasBid || st.BestBid != 0.51 {
		t.Errorf("BestBid = %v (has=%v), want 0.51", st.BestBid, st.HasBid)
	}
	if !st.HasAsk || st.BestAsk != 0.53 {
		t.Errorf("BestAsk = %v (has=%v), want 0.53", st.BestAsk, st.HasAsk)
	}
}

// TestTracker_ChangeBeforeSnapshot 测试快照前的增量
// 首个事件是增量时状态惰性创建，未携带的一侧保持未知
func TestTracker_ChangeBeforeSnapshot(t *testing.T) {
	tr := NewTracker()

	st := tr.Apply(changeEvent("111", 0.40, 0, true, false))
	if !st.HasBid || st.BestBid != 0.40 {
		t.Errorf("BestBid = %v (has=%v), want 0.40", st.BestBid, st.HasBid)
	}
	if st.HasAsk {
		t.Errorf("HasAsk = true, want false")
	}

	if _, ok := st.Mid(); ok {
		t.Errorf("Mid 有定义, want 无定义（单侧未知）")
	}
}

// TestTracker_IndependentAssets 测试不同 token 状态互不影响
func TestTracker_IndependentAssets(t *testing.T) {
	tr := NewTracker()
	tr.Apply(bookEvent("111", 0.50, 0.52, true, true))
	tr.Apply(bookEvent("222", 0.30, 0.33, true, true))

	tr.Apply(changeEvent("111", 0.49, 0, true, false))

	st, ok := tr.Get("222")
	if !ok || st.BestBid != 0.30 || st.BestAsk != 0.33 {
		t.Errorf("asset 222 状态被污染: %+v", st)
	}
	if tr.Size() != 2 {
		t.Errorf("Size = %d, want 2", tr.Size())
	}
}

// TestTracker_GetUnknownAsset 测试未知 token
func TestTracker_GetUnknownAsset(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Get("nope"); ok {
		t.Errorf("Get 未知 asset 返回 ok=true")
	}
}

// TestTracker_SnapshotIsValue 测试返回值是快照
// Apply 返回的是值拷贝，后续更新不应改变已返回的快照
func TestTracker_SnapshotIsValue(t *testing.T) {
	tr := NewTracker()
	first := tr.Apply(bookEvent("111", 0.50, 0.52, true, true))
	tr.Apply(bookEvent("111", 0.10, 0.90, true, true))

	if first.BestBid != 0.50 || first.BestAsk != 0.52 {
		t.Errorf("早先返回的快照被后续更新修改: %+v", first)
	}
}

// TestBookState_Mid 测试中间价
func TestBookState_Mid(t *testing.T) {
	tests := []struct {
		name    string
		st      model.BookState
		want    float64
		defined bool
	}{
		{
			name:    "两侧都有",
			st:      model.BookState{BestBid: 0.50, HasBid: true, BestAsk: 0.52, HasAsk: true},
			want:    0.51,
			defined: true,
		},
		{
			name: "只有买侧",
			st:   model.BookState{BestBid: 0.50, HasBid: true},
		},
		{
			name: "只有卖侧",
			st:   model.BookState{BestAsk: 0.52, HasAsk: true},
		},
		{
			name: "两侧都无",
			st:   model.BookState{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.st.Mid()
			if ok != tt.defined {
				t.Fatalf("defined = %v, want %v", ok, tt.defined)
			}
			if tt.defined && got != tt.want {
				t.Errorf("Mid = %v, want %v", got, tt.want)
			}
		})
	}
}
