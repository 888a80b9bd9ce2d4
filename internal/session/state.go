// Package session 订阅会话状态定义。
package session

// State 会话状态
// 状态机: Disconnected → Connecting → Subscribed → Receiving → Disconnected
// 循环，外部停止信号从任意状态进入终态 Stopped
type State int32

const (
	// StateDisconnected 未连接
	// 启动初始状态，或检测到断线后回到此状态等待退避重连
	StateDisconnected State = iota
	// StateConnecting 正在建立传输握手
	StateConnecting
	// StateSubscribed 握手成功且订阅请求已发出
	// feed 没有显式 ack，首条成功解码的消息触发进入 Receiving
	StateSubscribed
	// StateReceiving 正在接收并逐条处理消息
	StateReceiving
	// StateStopped 终态
	// 不再尝试重连；进入前在途消息已处理完毕
	StateStopped
)

// String 状态的字符串表示，用于日志
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
