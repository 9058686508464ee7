package model

// TurnState 表示当前轮次状态
type TurnState int

const (
	// Listening 等待用户输入或智能体回复
	Listening TurnState = iota
	// Speaking 智能体正在说话，音频正在播放
	Speaking
	// Interrupted 说话被打断，瞬时状态，处理完立即回到Listening
	Interrupted
)

// String returns the string representation of the state.
func (s TurnState) String() string {
	switch s {
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}
