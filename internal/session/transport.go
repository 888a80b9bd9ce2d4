// Package session 订阅传输抽象与 gorilla/websocket 实现。
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrReceiveTimeout 读取超时
	// 不代表连接损坏：会话发送心跳后继续等待下一条消息
	ErrReceiveTimeout = errors.New("接收超时")
	// ErrTransport 传输层错误
	// 连接断开或握手失败，触发重连状态转换，不致命
	ErrTransport = errors.New("传输错误")
)

// Conn 一条已建立的订阅连接
type Conn interface {
	// Send 发送一条文本消息
	Send(data []byte) error
	// Receive 阻塞读取下一条消息
	// 参数 timeout: 单次读取超时；超时返回 ErrReceiveTimeout
	Receive(timeout time.Duration) ([]byte, error)
	// Close 关闭连接
	Close() error
}

// Transport 订阅传输接口
// 抽象出来便于会话测试用脚本化的假传输替换真实 WebSocket
type Transport interface {
	// Connect 建立连接
	Connect(ctx context.Context, url string) (Conn, error)
}

// WSTransport gorilla/websocket 传输实现
type WSTransport struct {
	// handshakeTimeout 握手超时
	handshakeTimeout time.Duration
}

// NewWSTransport 创建 WebSocket 传输
// 参数 handshakeTimeoutMs: 握手超时（毫秒），超时计入一次失败的重连尝试
func NewWSTransport(handshakeTimeoutMs int) *WSTransport {
	return &WSTransport{
		handshakeTimeout: time.Duration(handshakeTimeoutMs) * time.Millisecond,
	}
}

// Connect 建立 WebSocket 连接
// 参数 ctx: 上下文，用于取消握手
// 参数 url: CLOB market 频道地址
func (t *WSTransport) Connect(ctx context.Context, url string) (Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", "polymarket-latency-recorder/1.0")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: 握手失败: %v", ErrTransport, err)
	}

	return &wsConn{conn: conn}, nil
}

// wsConn gorilla/websocket 连接包装
// 会话的接收循环是唯一调用方，读写都从同一 goroutine 发起，
// 满足 gorilla/websocket 的单读者单写者约束，无需加锁
type wsConn struct {
	conn *websocket.Conn
}

// Send 发送一条文本消息
func (c *wsConn) Send(data []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: 写入失败: %v", ErrTransport, err)
	}
	return nil
}

// Receive 阻塞读取下一条消息
// 超时返回 ErrReceiveTimeout，其余错误视为传输错误
func (c *wsConn) Receive(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: 设置读取超时失败: %v", ErrTransport, err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrReceiveTimeout
		}
		return nil, fmt.Errorf("%w: 读取失败: %v", ErrTransport, err)
	}

	return data, nil
}

// Close 关闭连接
func (c *wsConn) Close() error {
	return c.conn.Close()
}
