// Package gamma 负责从 gamma API 发现市场并提取 outcome token。
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher 市场元数据获取器接口
// 定义从 gamma API 查询市场和事件的方法
type Fetcher interface {
	// FetchMarketsBySlug 按 slug 查询市场列表
	FetchMarketsBySlug(ctx context.Context, slug string) ([]MarketPayload, error)
	// FetchEventBySlug 按 slug 查询事件
	FetchEventBySlug(ctx context.Context, slug string) (*EventPayload, error)
}

// HTTPFetcher HTTP 市场元数据获取器
// 通过 gamma REST API 获取市场和事件
type HTTPFetcher struct {
	// base gamma API 根地址
	base string
	// client HTTP 客户端
	client *http.Client
}

// NewHTTPFetcher 创建 HTTP 市场元数据获取器
// 参数 base: gamma API 根地址
// 参数 timeoutMs: HTTP 请求超时时间（毫秒）
func NewHTTPFetcher(base string, timeoutMs int) *HTTPFetcher {
	return &HTTPFetcher{
		base: base,
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
	}
}

// FetchMarketsBySlug 按 slug 查询市场列表
// API: GET {base}/markets?slug={slug}
// 参数 ctx: 上下文，用于取消请求
// 参数 slug: 市场标识
// 返回: 市场列表（可能为空）
func (f *HTTPFetcher) FetchMarketsBySlug(ctx context.Context, slug string) ([]MarketPayload, error) {
	u := fmt.Sprintf("%s/markets?slug=%s", f.base, url.QueryEscape(slug))

	body, err := f.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("请求 /markets 失败: %w", err)
	}

	var markets []MarketPayload
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("解析 /markets 响应失败: %w", err)
	}

	return markets, nil
}

// FetchEventBySlug 按 slug 查询事件
// API: GET {base}/events/slug/{slug}
// 参数 ctx: 上下文，用于取消请求
// 参数 slug: 事件标识
// 返回: 事件 payload
func (f *HTTPFetcher) FetchEventBySlug(ctx context.Context, slug string) (*EventPayload, error) {
	u := fmt.Sprintf("%s/events/slug/%s", f.base, url.PathEscape(slug))

	body, err := f.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("请求 /events/slug 失败: %w", err)
	}

	var event EventPayload
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("解析 /events/slug 响应失败: %w", err)
	}

	return &event, nil
}

// doRequest 执行 HTTP GET 请求
// 参数 ctx: 上下文
// 参数 url: 请求地址
// 返回: 响应体字节数组
func (f *HTTPFetcher) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("User-Agent", "polymarket-latency-recorder/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	return body, nil
}
