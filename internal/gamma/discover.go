// Package gamma 市场发现逻辑。
// 先按市场 slug 查 /markets，查不到 token 时把 slug 当事件标识
// 回退查 /events/slug/{slug}，取事件下第一个携带 token 的市场。
package gamma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"polymarket-latency-recorder/internal/core/model"
)

// ErrNoMarketFound 找不到活跃且启用 CLOB 的市场
// 对整个运行是致命错误：没有可订阅的对象
var ErrNoMarketFound = errors.New("未找到可订阅的市场")

// FindMarket 按 slug 发现市场
// 参数 ctx: 上下文
// 参数 f: 元数据获取器
// 参数 slug: 市场或事件标识
// 返回: 不可变的市场描述；无活跃且启用 CLOB 的匹配时返回 ErrNoMarketFound
func FindMarket(ctx context.Context, f Fetcher, slug string) (*model.Market, error) {
	// 1) 按市场 slug 直查
	markets, marketsErr := f.FetchMarketsBySlug(ctx, slug)
	if marketsErr == nil {
		for i := range markets {
			if m := buildMarket(&markets[i], slug); m != nil {
				return m, nil
			}
		}
	}

	// 2) 回退：把 slug 当事件标识
	event, eventErr := f.FetchEventBySlug(ctx, slug)
	if eventErr == nil {
		for i := range event.Markets {
			if m := buildMarket(&event.Markets[i], slug); m != nil {
				return m, nil
			}
		}
	}

	if marketsErr != nil || eventErr != nil {
		return nil, fmt.Errorf("%w: slug=%s (markets: %v, event: %v)", ErrNoMarketFound, slug, marketsErr, eventErr)
	}
	return nil, fmt.Errorf("%w: slug=%s", ErrNoMarketFound, slug)
}

// buildMarket 从 gamma payload 构建市场描述
// 要求市场活跃、启用 CLOB 且能提取到至少一个 token，否则返回 nil
func buildMarket(p *MarketPayload, slug string) *model.Market {
	if !p.Active || !p.EnableOrderBook {
		return nil
	}

	tokenIDs := NormalizeTokenIDs(p.ClobTokenIds)
	if len(tokenIDs) == 0 && strings.TrimSpace(p.ClobTokenId) != "" {
		tokenIDs = []string{strings.TrimSpace(p.ClobTokenId)}
	}
	if len(tokenIDs) == 0 {
		return nil
	}

	marketSlug := p.Slug
	if marketSlug == "" {
		marketSlug = slug
	}

	return &model.Market{
		Slug:        marketSlug,
		Question:    p.Question,
		AssetIDs:    tokenIDs,
		Outcomes:    ParseOutcomes(p.Outcomes),
		CLOBEnabled: p.EnableOrderBook,
	}
}

// NormalizeTokenIDs 归一化 clobTokenIds 字段
// 兼容三种已观察到的编码：
//   - 裸数组: ["123","456"]
//   - JSON 列表再编码成字符串: "[\"123\",\"456\"]"
//   - 单个 id 字符串: "123"
//
// 空白元素被过滤，结果按首次出现顺序去重。
// 参数 raw: 原始 JSON 值
// 返回: token id 列表；无法提取时返回 nil
func NormalizeTokenIDs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	// 裸数组
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, el := range list {
			var s string
			if err := json.Unmarshal(el, &s); err == nil {
				// 元素本身可能又是一个 JSON 列表字符串，递归展开
				out = append(out, expandString(s)...)
				continue
			}
			// 数字等其它标量，取字面量
			out = append(out, strings.TrimSpace(string(el)))
		}
		return dedup(out)
	}

	// 字符串（可能是 JSON 列表字符串或单个 id）
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return dedup(expandString(s))
	}

	return nil
}

// expandString 展开一个可能是 JSON 列表字符串的值
// 参数 s: 字符串值
// 返回: 展开后的 id 列表（未去重）
func expandString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var inner []any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			var out []string
			for _, v := range inner {
				switch t := v.(type) {
				case string:
					if trimmed := strings.TrimSpace(t); trimmed != "" {
						out = append(out, trimmed)
					}
				case json.Number:
					out = append(out, t.String())
				case float64:
					// 大整数 id 经 float64 会丢精度，gamma 的 id 都以字符串下发，
					// 这里只兜底小数值
					out = append(out, strings.TrimSpace(fmt.Sprintf("%.0f", t)))
				}
			}
			return out
		}
	}

	return []string{s}
}

// dedup 按首次出现顺序去重并过滤空白
func dedup(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ParseOutcomes 解析 outcomes 字段
// 编码方式与 clobTokenIds 一致（裸数组或 JSON 列表字符串）
// 参数 raw: 原始 JSON 值
// 返回: 结果标签列表；无法提取时返回 nil
func ParseOutcomes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			var inner []string
			if err := json.Unmarshal([]byte(s), &inner); err == nil {
				return inner
			}
		}
		if s != "" {
			return []string{s}
		}
	}

	return nil
}
