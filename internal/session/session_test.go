// Package session 会话状态机测试
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"polymarket-latency-recorder/internal/config"
	"polymarket-latency-recorder/internal/core/model"
)

// fakeStep 脚本化的单次 Receive 结果
type fakeStep struct {
	data []byte
	err  error
	// before 返回前执行的回调（如取消 ctx）
	before func()
}

// fakeConn 脚本化连接
// Receive 按脚本逐条返回，脚本耗尽视为连接断开
type fakeConn struct {
	steps  []fakeStep
	pos    int
	sent   [][]byte
	closed bool
}

func (c *fakeConn) Send(data []byte) error {
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Receive(timeout time.Duration) ([]byte, error) {
	if c.pos >= len(c.steps) {
		return nil, fmt.Errorf("%w: 连接断开", ErrTransport)
	}
	st := c.steps[c.pos]
	c.pos++
	if st.before != nil {
		st.before()
	}
	return st.data, st.err
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeTransport 脚本化传输
// 依次交出预置连接，耗尽时触发回调（测试用它取消 ctx）
type fakeTransport struct {
	conns       []*fakeConn
	pos         int
	onExhausted func()
}

func (t *fakeTransport) Connect(ctx context.Context, url string) (Conn, error) {
	if t.pos >= len(t.conns) {
		if t.onExhausted != nil {
			t.onExhausted()
		}
		return nil, errors.New("没有更多连接")
	}
	c := t.conns[t.pos]
	t.pos++
	return c, nil
}

// collectEmitter 收集输出行的假投递器
type collectEmitter struct {
	rows []*model.OutputRow
}

func (e *collectEmitter) Emit(row *model.OutputRow) error {
	e.rows = append(e.rows, row)
	return nil
}

func (e *collectEmitter) Flush() error { return nil }

func testConfig() *config.Config {
	var cfg config.Config
	cfg.Market.Slug = "some-market"
	cfg.WS.URL = "ws://test/ws/market"
	cfg.WS.HandshakeTimeoutMs = 100
	cfg.WS.ReadTimeoutMs = 100
	cfg.WS.Reconnect.BaseMs = 1
	cfg.WS.Reconnect.MaxMs = 2
	cfg.WS.Reconnect.Jitter = 0
	cfg.WS.Reconnect.StableResetMs = 60000
	cfg.Latency.ExchTsUnit = "ms"
	cfg.Latency.WindowSize = 100
	// 测试里不跑指标循环
	cfg.App.MetricsIntervalMs = 0
	return &cfg
}

func testMarket() *model.Market {
	return &model.Market{
		Slug:     "some-market",
		Question: "Q?",
		AssetIDs: []string{"111", "222"},
		Outcomes: []string{"Yes", "No"},
	}
}

func bookMsg(assetID, bid, ask string) []byte {
	return []byte(fmt.Sprintf(`{
		"event_type": "book",
		"asset_id": %q,
		"timestamp": "1700000000000",
		"bids": [{"price": %q, "size": "10"}],
		"asks": [{"price": %q, "size": "10"}]
	}`, assetID, bid, ask))
}

func newTestSession(t *testing.T, trans Transport, em Emitter) *Session {
	t.Helper()
	s, err := New(testConfig(), testMarket(), trans, em, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// TestSession_MixedMessages 测试坏消息不中断处理
// 1 条坏消息 + 10 条合法消息应产出恰好 10 行
func TestSession_MixedMessages(t *testing.T) {
	steps := []fakeStep{
		{data: []byte("PONG")},
		{data: []byte(`{not json`)},
	}
	for i := 0; i < 10; i++ {
		assetID := "111"
		if i%2 == 1 {
			assetID = "222"
		}
		steps = append(steps, fakeStep{data: bookMsg(assetID, "0.50", "0.52")})
	}

	conn := &fakeConn{steps: steps}
	ctx, cancel := context.WithCancel(context.Background())
	trans := &fakeTransport{conns: []*fakeConn{conn}, onExhausted: cancel}
	em := &collectEmitter{}

	s := newTestSession(t, trans, em)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(em.rows) != 10 {
		t.Fatalf("行数 = %d, want 10", len(em.rows))
	}

	m := s.Metrics()
	if m.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", m.DecodeErrors)
	}
	if m.RowsEmitted != 10 {
		t.Errorf("RowsEmitted = %d, want 10", m.RowsEmitted)
	}

	// 连接后的首条发送必须是完整 token 列表的订阅请求
	if len(conn.sent) == 0 {
		t.Fatalf("未发送订阅请求")
	}
	var sub struct {
		Type      string   `json:"type"`
		AssetsIDs []string `json:"assets_ids"`
	}
	if err := json.Unmarshal(conn.sent[0], &sub); err != nil {
		t.Fatalf("订阅请求不是合法 JSON: %v", err)
	}
	if sub.Type != "MARKET" || len(sub.AssetsIDs) != 2 {
		t.Errorf("订阅请求 = %+v", sub)
	}

	// 行内容抽查
	row := em.rows[0]
	if row.Slug != "some-market" || row.Question != "Q?" {
		t.Errorf("行元数据 = %+v", row)
	}
	if row.EventType != "book" || !row.Book.HasBid || row.Book.BestBid != 0.50 {
		t.Errorf("行盘口 = %+v", row.Book)
	}
	if mid, ok := row.Book.Mid(); !ok || mid != 0.51 {
		t.Errorf("mid = %v (ok=%v), want 0.51", mid, ok)
	}
	if !row.Latency.HasNet {
		t.Errorf("HasNet = false, want true（时间戳可解析）")
	}

	if !conn.closed {
		t.Errorf("连接未关闭")
	}
}

// TestSession_ReconnectResubscribes 测试断线重连
// 断线后重连必须重新订阅完整 token 列表，重连后的首个快照
// 无条件替换旧状态
func TestSession_ReconnectResubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	conn1 := &fakeConn{steps: []fakeStep{
		{data: bookMsg("111", "0.50", "0.52")},
		// 脚本耗尽 = 连接断开
	}}
	conn2 := &fakeConn{steps: []fakeStep{
		// 重连后的快照只有买侧：卖侧必须被清空而不是保留 0.52
		{data: []byte(`{
			"event_type": "book",
			"asset_id": "111",
			"timestamp": "1700000000500",
			"bids": [{"price": "0.40", "size": "5"}],
			"asks": []
		}`)},
		// 在途消息处理完后才停止
		{data: bookMsg("222", "0.30", "0.33"), before: cancel},
	}}

	trans := &fakeTransport{conns: []*fakeConn{conn1, conn2}}
	em := &collectEmitter{}

	s := newTestSession(t, trans, em)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := s.State(); got != StateStopped {
		t.Errorf("State = %s, want stopped", got)
	}

	m := s.Metrics()
	if m.Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", m.Reconnects)
	}

	// 两条连接各自都要发订阅请求，且 payload 一致
	if len(conn1.sent) == 0 || len(conn2.sent) == 0 {
		t.Fatalf("订阅请求缺失: conn1=%d conn2=%d", len(conn1.sent), len(conn2.sent))
	}
	if string(conn1.sent[0]) != string(conn2.sent[0]) {
		t.Errorf("重连后的订阅请求与首次不一致")
	}

	// 在途消息全部处理: 3 行
	if len(em.rows) != 3 {
		t.Fatalf("行数 = %d, want 3", len(em.rows))
	}

	// 重连后的快照替换旧状态
	st, ok := s.Book("111")
	if !ok {
		t.Fatalf("asset 111 无状态")
	}
	if !st.HasBid || st.BestBid != 0.40 {
		t.Errorf("BestBid = %v (has=%v), want 0.40", st.BestBid, st.HasBid)
	}
	if st.HasAsk {
		t.Errorf("HasAsk = true, want false（重连快照缺卖侧应清空）")
	}

	if !conn1.closed || !conn2.closed {
		t.Errorf("连接未全部关闭: conn1=%v conn2=%v", conn1.closed, conn2.closed)
	}
}

// TestSession_HeartbeatOnReadTimeout 测试读取超时心跳
// 超时不触发重连，发送 PING 后继续在同一连接上等待
func TestSession_HeartbeatOnReadTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	conn := &fakeConn{steps: []fakeStep{
		{err: ErrReceiveTimeout},
		{data: bookMsg("111", "0.50", "0.52"), before: cancel},
	}}
	trans := &fakeTransport{conns: []*fakeConn{conn}}
	em := &collectEmitter{}

	s := newTestSession(t, trans, em)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// sent[0] 订阅请求，sent[1] 心跳
	if len(conn.sent) < 2 {
		t.Fatalf("发送记录 = %d 条, want >= 2", len(conn.sent))
	}
	if string(conn.sent[1]) != "PING" {
		t.Errorf("sent[1] = %q, want PING", conn.sent[1])
	}

	if m := s.Metrics(); m.Reconnects != 0 {
		t.Errorf("Reconnects = %d, want 0（超时不算断线）", m.Reconnects)
	}
	if len(em.rows) != 1 {
		t.Errorf("行数 = %d, want 1", len(em.rows))
	}
}

// TestSession_UnknownEventNoRow 测试未知事件不产出行
func TestSession_UnknownEventNoRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	conn := &fakeConn{steps: []fakeStep{
		{data: []byte(`{"event_type": "tick_size_change", "asset_id": "111"}`)},
		{data: bookMsg("111", "0.50", "0.52"), before: cancel},
	}}
	trans := &fakeTransport{conns: []*fakeConn{conn}}
	em := &collectEmitter{}

	s := newTestSession(t, trans, em)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(em.rows) != 1 {
		t.Fatalf("行数 = %d, want 1（未知事件无行）", len(em.rows))
	}
	m := s.Metrics()
	if m.UnknownEvents != 1 {
		t.Errorf("UnknownEvents = %d, want 1", m.UnknownEvents)
	}
	if m.DecodeErrors != 0 {
		t.Errorf("DecodeErrors = %d, want 0（未知类型不是错误）", m.DecodeErrors)
	}
}

// TestSession_New_RequiresTokens 测试空市场拒绝
func TestSession_New_RequiresTokens(t *testing.T) {
	_, err := New(testConfig(), &model.Market{Slug: "m"}, &fakeTransport{}, &collectEmitter{}, zap.NewNop())
	if err == nil {
		t.Errorf("空 token 列表应报错")
	}
}
