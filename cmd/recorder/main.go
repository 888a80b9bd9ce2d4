// Package main 是 Polymarket 盘口延迟记录器的入口点。
// 按 slug 从 gamma API 发现市场，订阅 CLOB market 频道的全部
// outcome token，为每条订单簿事件计算处理/网络/端到端延迟，
// 逐行追加到 CSV 文件。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"polymarket-latency-recorder/internal/config"
	"polymarket-latency-recorder/internal/gamma"
	"polymarket-latency-recorder/internal/output/csvout"
	"polymarket-latency-recorder/internal/session"
)

func main() {
	var configPath string
	var slugOverride string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&slugOverride, "slug", "", "市场标识（覆盖配置文件）")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if slugOverride != "" {
		cfg.Market.Slug = slugOverride
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	// 启动时按 slug 发现市场（禁止硬编码订阅 token）
	discoverCtx, discoverCancel := context.WithTimeout(ctx, 30*time.Second)
	defer discoverCancel()

	fetcher := gamma.NewHTTPFetcher(cfg.Market.GammaBase, cfg.Market.TimeoutMs)
	market, err := gamma.FindMarket(discoverCtx, fetcher, cfg.Market.Slug)
	if err != nil {
		logger.Error("市场发现失败", zap.Error(err), zap.String("slug", cfg.Market.Slug))
		os.Exit(1)
	}

	logger.Info("市场发现完成",
		zap.String("slug", market.Slug),
		zap.String("question", market.Question),
		zap.Bool("clob_enabled", market.CLOBEnabled),
		zap.Int("tokens", len(market.AssetIDs)))
	for i, assetID := range market.AssetIDs {
		outcome := ""
		if i < len(market.Outcomes) {
			outcome = market.Outcomes[i]
		}
		logger.Info("订阅 token",
			zap.String("asset_id", assetID),
			zap.String("outcome", outcome))
	}

	writer, err := csvout.NewWriter(cfg.Output.Dir, cfg.Output.Filename, cfg.Output.BufferSize)
	if err != nil {
		logger.Error("创建 CSV writer 失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("输出文件就绪", zap.String("path", writer.Path()))

	transport := session.NewWSTransport(cfg.WS.HandshakeTimeoutMs)
	sess, err := session.New(cfg, market, transport, writer, logger)
	if err != nil {
		logger.Error("创建会话失败", zap.Error(err))
		os.Exit(1)
	}

	if err := sess.Run(ctx); err != nil {
		logger.Error("会话退出", zap.Error(err))
	}

	// 最后一次指标快照（便于离线复盘）
	m := sess.Metrics()
	st := sess.LatencyStats()
	logger.Info("运行结束",
		zap.Int64("rows", m.RowsEmitted),
		zap.Int64("reconnects", m.Reconnects),
		zap.Int64("decode_errors", m.DecodeErrors),
		zap.Int64("unknown_events", m.UnknownEvents),
		zap.Int64("samples", st.Count),
		zap.Float64("proc_p50_ms", st.ProcP50Ms),
		zap.Float64("proc_p99_ms", st.ProcP99Ms),
		zap.Float64("net_p50_ms", st.NetP50Ms),
		zap.Float64("net_p99_ms", st.NetP99Ms))

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = writer.Flush()
		_ = writer.Close()
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
