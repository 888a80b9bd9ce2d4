// Package session 实现订阅会话状态机。
// 负责连接 CLOB market 频道、发送订阅请求、逐条处理消息并维护
// 断线重连。每条携带盘口数据的事件经过 book 快照与延迟计算后
// 生成一行输出，交给异步写入器落盘。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"polymarket-latency-recorder/internal/config"
	"polymarket-latency-recorder/internal/core/book"
	"polymarket-latency-recorder/internal/core/model"
	"polymarket-latency-recorder/internal/feed"
	"polymarket-latency-recorder/internal/stats/latency"
	"polymarket-latency-recorder/internal/util/backoff"
	"polymarket-latency-recorder/internal/util/timeutil"
)

// 心跳文本，服务端用 PONG 应答，PONG 不参与解码
const (
	pingText = "PING"
	pongText = "PONG"
)

// Emitter 输出行投递接口
type Emitter interface {
	// Emit 异步投递一条输出行
	Emit(row *model.OutputRow) error
	// Flush 等待已投递的行落盘
	Flush() error
}

// Metrics 会话运行指标快照
type Metrics struct {
	// Reconnects 重连次数（含失败的连接尝试）
	Reconnects int64 `json:"reconnects"`
	// DecodeErrors 解码失败的消息数
	DecodeErrors int64 `json:"decode_errors"`
	// UnknownEvents 未知事件类型数
	UnknownEvents int64 `json:"unknown_events"`
	// RowsEmitted 已投递的输出行数
	RowsEmitted int64 `json:"rows_emitted"`
	// LastMessageAgeMs 距最后一条消息的时长（毫秒），未收到过为 -1
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
}

// Session 订阅会话
// 整个消息处理路径是严格串行的：单 goroutine 依次完成读取、
// 解码、book 更新、延迟计算和行投递，天然满足同一 token
// 事件的有序处理
type Session struct {
	wsCfg   config.WSConfig
	market  *model.Market
	logger  *zap.Logger
	trans   Transport
	emitter Emitter

	books   *book.Tracker
	calc    *latency.Calculator
	stats   *latency.Tracker
	backoff *backoff.Backoff

	metricsInterval time.Duration

	// state 当前状态，atomic 访问供外部观察
	state int32

	// 运行指标，atomic 访问
	lastMsgNs     int64
	reconnects    int64
	decodeErrors  int64
	unknownEvents int64
	rowsEmitted   int64

	// 解码错误采样日志
	decodeErrSamples uint64
	lastDecodeWarnNs int64
	subscribePayload []byte
}

// New 创建订阅会话
// 参数 cfg: 应用配置
// 参数 market: 已发现的市场描述
// 参数 trans: 订阅传输
// 参数 emitter: 输出行投递器
// 参数 logger: 日志器
func New(cfg *config.Config, market *model.Market, trans Transport, emitter Emitter, logger *zap.Logger) (*Session, error) {
	if market == nil || len(market.AssetIDs) == 0 {
		return nil, errors.New("市场没有可订阅的 token")
	}

	payload, err := json.Marshal(feed.SubscribeRequest{
		Type:      "MARKET",
		AssetsIDs: market.AssetIDs,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		wsCfg:   cfg.WS,
		market:  market,
		logger:  logger.Named("session"),
		trans:   trans,
		emitter: emitter,
		books:   book.NewTracker(),
		calc:    latency.NewCalculator(latency.TsUnit(cfg.Latency.ExchTsUnit)),
		stats:   latency.NewTracker(cfg.Latency.WindowSize),
		backoff: backoff.New(
			time.Duration(cfg.WS.Reconnect.BaseMs)*time.Millisecond,
			time.Duration(cfg.WS.Reconnect.MaxMs)*time.Millisecond,
			cfg.WS.Reconnect.Jitter,
		),
		metricsInterval:  time.Duration(cfg.App.MetricsIntervalMs) * time.Millisecond,
		lastMsgNs:        -1,
		subscribePayload: payload,
	}, nil
}

// State 获取当前会话状态
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(st State) {
	old := State(atomic.SwapInt32(&s.state, int32(st)))
	if old != st {
		s.logger.Debug("状态转换",
			zap.String("from", old.String()),
			zap.String("to", st.String()))
	}
}

// Metrics 获取运行指标快照
func (s *Session) Metrics() Metrics {
	m := Metrics{
		Reconnects:       atomic.LoadInt64(&s.reconnects),
		DecodeErrors:     atomic.LoadInt64(&s.decodeErrors),
		UnknownEvents:    atomic.LoadInt64(&s.unknownEvents),
		RowsEmitted:      atomic.LoadInt64(&s.rowsEmitted),
		LastMessageAgeMs: -1,
	}
	if last := atomic.LoadInt64(&s.lastMsgNs); last > 0 {
		m.LastMessageAgeMs = timeutil.NanoToMs(timeutil.NowNano() - last)
	}
	return m
}

// LatencyStats 获取延迟统计快照
func (s *Session) LatencyStats() latency.Stats {
	return s.stats.Snapshot()
}

// Book 获取某个 token 的当前盘口快照
func (s *Session) Book(assetID string) (model.BookState, bool) {
	return s.books.Get(assetID)
}

// Run 运行会话直到 ctx 取消
// 连接失败或断线后按指数退避重连，每次重连都重新订阅完整
// token 列表。ctx 取消时处理完在途消息、进入终态后返回 nil
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	if s.metricsInterval > 0 {
		go s.metricsLoop(ctx)
	}

	s.logger.Info("会话启动",
		zap.String("slug", s.market.Slug),
		zap.String("url", s.wsCfg.URL),
		zap.Int("assets", len(s.market.AssetIDs)))

	first := true
	for {
		if ctx.Err() != nil {
			s.logger.Info("会话停止")
			return nil
		}

		if !first {
			delay := s.backoff.Next()
			s.logger.Info("等待重连",
				zap.Duration("delay", delay),
				zap.Int("attempt", s.backoff.Attempt()))
			select {
			case <-ctx.Done():
				s.logger.Info("会话停止")
				return nil
			case <-time.After(delay):
			}
		}
		first = false

		s.setState(StateConnecting)
		conn, err := s.trans.Connect(ctx, s.wsCfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("会话停止")
				return nil
			}
			atomic.AddInt64(&s.reconnects, 1)
			s.setState(StateDisconnected)
			s.logger.Warn("连接失败", zap.Error(err))
			continue
		}

		if err := conn.Send(s.subscribePayload); err != nil {
			_ = conn.Close()
			atomic.AddInt64(&s.reconnects, 1)
			s.setState(StateDisconnected)
			s.logger.Warn("发送订阅请求失败", zap.Error(err))
			continue
		}
		s.setState(StateSubscribed)
		s.logger.Info("订阅请求已发送", zap.Int("assets", len(s.market.AssetIDs)))

		err = s.receiveLoop(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			s.logger.Info("会话停止")
			return nil
		}

		atomic.AddInt64(&s.reconnects, 1)
		s.setState(StateDisconnected)
		s.logger.Warn("连接断开", zap.Error(err))
	}
}

// receiveLoop 单连接的接收循环
// 读取超时发送心跳后继续等待；传输错误返回交给外层重连。
// 稳定接收超过 stable_reset_ms 后把退避重置回基础间隔
func (s *Session) receiveLoop(ctx context.Context, conn Conn) error {
	readTimeout := time.Duration(s.wsCfg.ReadTimeoutMs) * time.Millisecond
	stableAfterNs := int64(s.wsCfg.Reconnect.StableResetMs) * 1e6
	connectedNs := timeutil.NowNano()
	backoffReset := false

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, err := conn.Receive(readTimeout)
		if err != nil {
			if errors.Is(err, ErrReceiveTimeout) {
				// 超时不代表断线，心跳探活后继续等
				if serr := conn.Send([]byte(pingText)); serr != nil {
					return serr
				}
				s.logger.Debug("读取超时，已发送心跳")
				continue
			}
			return err
		}

		recvNs := timeutil.NowNano()
		atomic.StoreInt64(&s.lastMsgNs, recvNs)

		if len(data) == 0 || string(data) == pongText {
			continue
		}

		events, decErr := feed.Decode(data, recvNs)
		if decErr != nil {
			atomic.AddInt64(&s.decodeErrors, 1)
			s.maybeLogDecodeError(decErr, data)
		}
		if len(events) == 0 {
			continue
		}

		if s.State() == StateSubscribed {
			s.setState(StateReceiving)
			s.logger.Info("开始接收行情", zap.String("slug", s.market.Slug))
		}

		for _, ev := range events {
			s.process(ev)
		}

		if !backoffReset && timeutil.NowNano()-connectedNs >= stableAfterNs {
			s.backoff.Reset()
			backoffReset = true
			s.logger.Debug("连接稳定，重置退避")
		}
	}
}

// process 处理单个已解码事件
// 未知事件只计数，不产出行。携带盘口数据的事件先更新 book
// 快照，再取处理完成时间计算延迟，最后投递输出行
func (s *Session) process(ev *model.FeedEvent) {
	if !ev.HasBookData() {
		atomic.AddInt64(&s.unknownEvents, 1)
		s.logger.Debug("忽略未知事件", zap.String("event_type", ev.RawType))
		return
	}

	snapshot := s.books.Apply(ev)
	procEndNs := timeutil.NowNano()

	sample := s.calc.Compute(ev.RecvUnixNs, procEndNs, ev.ExchTsRaw)
	s.stats.Add(sample)

	row := &model.OutputRow{
		UTCISO:    timeutil.UTCNowISO(),
		Slug:      s.market.Slug,
		Question:  s.market.Question,
		AssetID:   ev.AssetID,
		EventType: string(ev.Type),
		Book:      snapshot,
		Latency:   sample,
	}

	if err := s.emitter.Emit(row); err != nil {
		s.logger.Warn("输出行投递失败", zap.Error(err))
		return
	}
	atomic.AddInt64(&s.rowsEmitted, 1)
}

// maybeLogDecodeError 采样输出解码错误日志
// 全量 Warn 会在上游持续下发坏消息时刷屏，这里每 100 条且
// 距上次至少 1 分钟才输出一次，计数始终准确
func (s *Session) maybeLogDecodeError(err error, data []byte) {
	n := atomic.AddUint64(&s.decodeErrSamples, 1)
	if n != 1 && n%100 != 0 {
		return
	}

	now := timeutil.NowNano()
	last := atomic.LoadInt64(&s.lastDecodeWarnNs)
	if n != 1 && now-last < int64(time.Minute) {
		return
	}
	atomic.StoreInt64(&s.lastDecodeWarnNs, now)

	preview := data
	if len(preview) > 256 {
		preview = preview[:256]
	}
	s.logger.Warn("消息解码失败",
		zap.Uint64("total", n),
		zap.Error(err),
		zap.ByteString("preview", preview))
}

// metricsLoop 周期性输出运行指标
func (s *Session) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.Metrics()
			st := s.stats.Snapshot()
			s.logger.Info("运行指标",
				zap.String("state", s.State().String()),
				zap.Int64("rows", m.RowsEmitted),
				zap.Int64("reconnects", m.Reconnects),
				zap.Int64("decode_errors", m.DecodeErrors),
				zap.Int64("unknown_events", m.UnknownEvents),
				zap.Int64("last_msg_age_ms", m.LastMessageAgeMs),
				zap.Int("tokens", s.books.Size()),
				zap.Int64("samples", st.Count),
				zap.Float64("proc_p50_ms", st.ProcP50Ms),
				zap.Float64("proc_p99_ms", st.ProcP99Ms),
				zap.Float64("net_p50_ms", st.NetP50Ms),
				zap.Float64("net_p99_ms", st.NetP99Ms))
		}
	}
}
