package model

// ConnectionState 表示与智能体之间双工连接的状态
type ConnectionState int

const (
	// Disconnected 未连接，可能正在等待重连
	Disconnected ConnectionState = iota
	// Connecting 正在握手
	Connecting
	// Connected 已连接，可以收发消息
	Connected
	// ClosingByUser 用户主动关闭中，关闭后不会重连
	ClosingByUser
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ClosingByUser:
		return "closing_by_user"
	default:
		return "unknown"
	}
}

// Session 会话上下文，由会话控制器独占，生命周期与进程相同
type Session struct {
	ID        string          // 会话ID，进程启动时生成一次
	AudioMode bool            // 是否处于语音模式，false表示纯文本
	State     ConnectionState // 当前连接状态
}
