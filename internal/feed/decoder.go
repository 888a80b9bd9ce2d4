// Package feed 实现 CLOB market 频道消息解码。
// 解码是纯函数：不触碰任何组件状态，同一输入永远得到同一输出。
// 字段映射: event_type/type -> Type, asset_id -> AssetID, timestamp -> ExchTsRaw
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"polymarket-latency-recorder/internal/core/model"
	"polymarket-latency-recorder/internal/util/fastparse"
)

var (
	// ErrDecode 消息完全无法按预期线格式解析
	// 消息记录日志后丢弃，会话继续
	ErrDecode = errors.New("消息解码失败")
	// ErrMissingField 消息结构合法但缺少必需字段（asset_id）
	// 消息记录日志后丢弃，会话继续
	ErrMissingField = errors.New("消息缺少必需字段")
)

// Decode 解码一条原始 feed 消息
// feed 有时推送单个对象，有时推送对象数组；数组逐元素解码，
// 单个元素的错误不影响其余元素，通过 errors.Join 聚合返回。
// 参数 data: 原始消息字节
// 参数 recvNs: 本机收到该消息的时间戳（纳秒），由会话在读到消息时立即采集
// 返回: 解码出的事件列表和（若有）聚合错误；两者可同时非空
func Decode(data []byte, recvNs int64) ([]*model.FeedEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: 空消息", ErrDecode)
	}

	// 数组形式：逐元素解码
	if trimmed[0] == '[' {
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}

		var events []*model.FeedEvent
		var errs []error
		for i, el := range elements {
			evs, err := decodeOne(el, recvNs)
			if err != nil {
				errs = append(errs, fmt.Errorf("第 %d 个元素: %w", i, err))
				continue
			}
			events = append(events, evs...)
		}
		return events, errors.Join(errs...)
	}

	return decodeOne(trimmed, recvNs)
}

// decodeOne 解码单个消息对象
// 参数 data: 单个 JSON 对象
// 参数 recvNs: 接收时间戳（纳秒）
// 返回: 事件列表（price_change 可能按 asset_id 展开为多条）
func decodeOne(data []byte, recvNs int64) ([]*model.FeedEvent, error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch msg.eventType() {
	case string(model.EventBook):
		ev, err := decodeBook(&msg, recvNs)
		if err != nil {
			return nil, err
		}
		return []*model.FeedEvent{ev}, nil

	case string(model.EventPriceChange):
		return decodePriceChange(&msg, recvNs)

	default:
		// 已识别的“不关心”情形：结构合法但类型不在已知集合内。
		// 不是错误，解码为 unknown 事件由会话记录日志后丢弃。
		rawType := msg.eventType()
		if rawType == "" {
			rawType = string(model.EventUnknown)
		}
		return []*model.FeedEvent{{
			Type:       model.EventUnknown,
			RawType:    rawType,
			AssetID:    msg.AssetID,
			ExchTsRaw:  string(msg.Timestamp),
			RecvUnixNs: recvNs,
		}}, nil
	}
}

// decodeBook 解码 book 快照事件
// 快照重述该 token 的完整订单簿，两侧取值规则：
// 买侧取可解析档位中的最高价，卖侧取可解析档位中的最低价；
// 价格或数量不可解析的档位直接跳过。
func decodeBook(msg *wsMessage, recvNs int64) (*model.FeedEvent, error) {
	if msg.AssetID == "" {
		return nil, fmt.Errorf("%w: book 事件缺少 asset_id", ErrMissingField)
	}

	ev := &model.FeedEvent{
		Type:       model.EventBook,
		RawType:    msg.eventType(),
		AssetID:    msg.AssetID,
		ExchTsRaw:  string(msg.Timestamp),
		RecvUnixNs: recvNs,
	}

	ev.Bid, ev.HasBid = bestFromLevels(msg.Bids, true)
	ev.Ask, ev.HasAsk = bestFromLevels(msg.Asks, false)

	return ev, nil
}

// decodePriceChange 解码 price_change 增量事件
// 每条变更自带变更后的 best_bid/best_ask；同一消息内同一 asset_id 的
// 多条变更按出现顺序合并，后出现的覆盖先出现的同侧值。
// 返回: 按 asset_id 首次出现顺序展开的事件列表
func decodePriceChange(msg *wsMessage, recvNs int64) ([]*model.FeedEvent, error) {
	if len(msg.PriceChanges) == 0 {
		// 无变更列表的 price_change：仍要求 asset_id，产出不携带任何一侧的事件
		if msg.AssetID == "" {
			return nil, fmt.Errorf("%w: price_change 事件缺少 asset_id", ErrMissingField)
		}
		return []*model.FeedEvent{{
			Type:       model.EventPriceChange,
			RawType:    msg.eventType(),
			AssetID:    msg.AssetID,
			ExchTsRaw:  string(msg.Timestamp),
			RecvUnixNs: recvNs,
		}}, nil
	}

	byAsset := make(map[string]*model.FeedEvent, len(msg.PriceChanges))
	var order []string
	var errs []error

	for i := range msg.PriceChanges {
		pc := &msg.PriceChanges[i]

		assetID := pc.AssetID
		if assetID == "" {
			assetID = msg.AssetID
		}
		if assetID == "" {
			errs = append(errs, fmt.Errorf("%w: price_change 变更缺少 asset_id", ErrMissingField))
			continue
		}

		ev, ok := byAsset[assetID]
		if !ok {
			ev = &model.FeedEvent{
				Type:       model.EventPriceChange,
				RawType:    msg.eventType(),
				AssetID:    assetID,
				ExchTsRaw:  string(msg.Timestamp),
				RecvUnixNs: recvNs,
			}
			byAsset[assetID] = ev
			order = append(order, assetID)
		}

		// 空串表示本条不携带该侧；不可解析的值同样按缺失处理，绝不猜一个数
		if pc.BestBid != "" {
			if px, err := fastparse.ParseFloat(pc.BestBid); err == nil {
				ev.Bid = px
				ev.HasBid = true
			}
		}
		if pc.BestAsk != "" {
			if px, err := fastparse.ParseFloat(pc.BestAsk); err == nil {
				ev.Ask = px
				ev.HasAsk = true
			}
		}
	}

	events := make([]*model.FeedEvent, 0, len(order))
	for _, id := range order {
		events = append(events, byAsset[id])
	}
	return events, errors.Join(errs...)
}

// bestFromLevels 从档位列表中选出最优价
// 参数 levels: 档位列表
// 参数 isBid: true 取最高价（买侧），false 取最低价（卖侧）
// 返回: 最优价和是否存在可解析档位
func bestFromLevels(levels []priceLevel, isBid bool) (float64, bool) {
	var best float64
	found := false

	for i := range levels {
		px, err := fastparse.ParseFloat(levels[i].Price)
		if err != nil {
			continue
		}
		if _, err := fastparse.ParseFloat(levels[i].Size); err != nil {
			continue
		}
		if !found {
			best = px
			found = true
			continue
		}
		if isBid && px > best {
			best = px
		}
		if !isBid && px < best {
			best = px
		}
	}

	return best, found
}
