// Package config 负责加载和验证 YAML 配置文件。
// 提供应用程序所需的所有配置项，包括市场发现、WebSocket 连接、
// 延迟计算假设和输出设置。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Market 市场发现配置
	Market MarketConfig `yaml:"market"`
	// WS WebSocket 连接配置
	WS WSConfig `yaml:"ws"`
	// Latency 延迟计算配置
	Latency LatencyConfig `yaml:"latency"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
	// MetricsIntervalMs 指标日志输出间隔（毫秒）
	MetricsIntervalMs int `yaml:"metrics_interval_ms"`
}

// MarketConfig 市场发现配置
type MarketConfig struct {
	// Slug 市场或事件标识，如 wta-uchijim-bondar-2026-02-13
	Slug string `yaml:"slug"`
	// GammaBase gamma API 根地址
	GammaBase string `yaml:"gamma_base"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
}

// WSConfig WebSocket 连接配置
type WSConfig struct {
	// URL CLOB market 频道地址
	URL string `yaml:"url"`
	// HandshakeTimeoutMs 握手超时（毫秒），超时计入一次失败的重连尝试
	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	// ReadTimeoutMs 读取超时（毫秒），超时视为仍在连接、发送心跳后继续等待
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	// Reconnect 重连退避配置
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig 重连退避配置
type ReconnectConfig struct {
	// BaseMs 基础退避间隔（毫秒）
	BaseMs int `yaml:"base_ms"`
	// MaxMs 最大退避间隔（毫秒）
	MaxMs int `yaml:"max_ms"`
	// Jitter 抖动比例（0-1）
	Jitter float64 `yaml:"jitter"`
	// StableResetMs 稳定接收多久后重置退避（毫秒）
	StableResetMs int `yaml:"stable_reset_ms"`
}

// LatencyConfig 延迟计算配置
type LatencyConfig struct {
	// ExchTsUnit 交易所时间戳单位: s, ms, us, ns
	// feed 的 timestamp 格式上游不保证，这里是可配置假设而非硬约定
	ExchTsUnit string `yaml:"exch_ts_unit"`
	// WindowSize 延迟统计滚动窗口大小
	WindowSize int `yaml:"window_size"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// Filename CSV 文件名
	Filename string `yaml:"filename"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "polymarket-latency-recorder"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.MetricsIntervalMs == 0 {
		c.App.MetricsIntervalMs = 10000 // 10 秒
	}

	if c.Market.GammaBase == "" {
		c.Market.GammaBase = "https://gamma-api.polymarket.com"
	}
	if c.Market.TimeoutMs == 0 {
		c.Market.TimeoutMs = 20000 // 20 秒
	}

	if c.WS.URL == "" {
		c.WS.URL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if c.WS.HandshakeTimeoutMs == 0 {
		c.WS.HandshakeTimeoutMs = 10000 // 10 秒
	}
	if c.WS.ReadTimeoutMs == 0 {
		c.WS.ReadTimeoutMs = 10000 // 10 秒
	}
	if c.WS.Reconnect.BaseMs == 0 {
		c.WS.Reconnect.BaseMs = 1000 // 1 秒
	}
	if c.WS.Reconnect.MaxMs == 0 {
		c.WS.Reconnect.MaxMs = 30000 // 30 秒
	}
	if c.WS.Reconnect.Jitter == 0 {
		c.WS.Reconnect.Jitter = 0.2
	}
	if c.WS.Reconnect.StableResetMs == 0 {
		c.WS.Reconnect.StableResetMs = 30000 // 30 秒
	}

	if c.Latency.ExchTsUnit == "" {
		c.Latency.ExchTsUnit = "ms"
	}
	if c.Latency.WindowSize == 0 {
		c.Latency.WindowSize = 10000
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./data"
	}
	if c.Output.Filename == "" {
		c.Output.Filename = "polymarket_latency.csv"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.Market.Slug == "" {
		errs = append(errs, "market.slug: 市场标识不能为空")
	}
	if c.Market.GammaBase == "" {
		errs = append(errs, "market.gamma_base: gamma API 地址不能为空")
	}
	if c.Market.TimeoutMs <= 0 {
		errs = append(errs, "market.timeout_ms: 超时时间必须为正数")
	}

	if c.WS.URL == "" {
		errs = append(errs, "ws.url: WebSocket 地址不能为空")
	}
	if c.WS.HandshakeTimeoutMs <= 0 {
		errs = append(errs, "ws.handshake_timeout_ms: 握手超时必须为正数")
	}
	if c.WS.ReadTimeoutMs <= 0 {
		errs = append(errs, "ws.read_timeout_ms: 读取超时必须为正数")
	}
	if c.WS.Reconnect.BaseMs <= 0 {
		errs = append(errs, "ws.reconnect.base_ms: 基础退避间隔必须为正数")
	}
	if c.WS.Reconnect.MaxMs < c.WS.Reconnect.BaseMs {
		errs = append(errs, "ws.reconnect.max_ms: 最大退避间隔不能小于基础间隔")
	}
	if c.WS.Reconnect.Jitter < 0 || c.WS.Reconnect.Jitter > 1 {
		errs = append(errs, fmt.Sprintf("ws.reconnect.jitter: 抖动比例必须在 0-1 之间，当前值: %f", c.WS.Reconnect.Jitter))
	}
	if c.WS.Reconnect.StableResetMs <= 0 {
		errs = append(errs, "ws.reconnect.stable_reset_ms: 稳定重置时长必须为正数")
	}

	validUnits := map[string]bool{"s": true, "ms": true, "us": true, "ns": true}
	if !validUnits[c.Latency.ExchTsUnit] {
		errs = append(errs, fmt.Sprintf("latency.exch_ts_unit: 无效的时间戳单位 '%s'，有效值: s, ms, us, ns", c.Latency.ExchTsUnit))
	}
	if c.Latency.WindowSize <= 0 {
		errs = append(errs, "latency.window_size: 滚动窗口大小必须为正数")
	}

	if c.Output.Dir == "" {
		errs = append(errs, "output.dir: 输出目录不能为空")
	}
	if c.Output.Filename == "" {
		errs = append(errs, "output.filename: 输出文件名不能为空")
	}
	if c.Output.BufferSize <= 0 {
		errs = append(errs, "output.buffer_size: 缓冲区大小必须为正数")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
