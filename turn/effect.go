package turn

// Effect 状态机产生的副作用，由会话控制器执行
type Effect interface {
	isEffect()
}

// PlayAudio 把一段音频加入播放队列
type PlayAudio struct {
	Data []byte
}

// FlushPlayback 立即丢弃播放队列并停止当前播放
type FlushPlayback struct{}

// EnterSpeaking 进入说话的视觉状态
type EnterSpeaking struct{}

// ExitSpeaking 退出说话的视觉状态
type ExitSpeaking struct{}

// AppendText 智能体的文本增量，同一轮次的文本使用同一个MessageID
type AppendText struct {
	MessageID string
	Text      string
}

// StopCapture 停止采集并排空聚合器
type StopCapture struct{}

// StopVisualizer 停止音量可视化循环
type StopVisualizer struct{}

func (PlayAudio) isEffect()      {}
func (FlushPlayback) isEffect()  {}
func (EnterSpeaking) isEffect()  {}
func (ExitSpeaking) isEffect()   {}
func (AppendText) isEffect()     {}
func (StopCapture) isEffect()    {}
func (StopVisualizer) isEffect() {}
