// Package turn 轮次/打断状态机：决定何时播放、何时回到聆听。
package turn

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lingzhi-client/codec"
	"lingzhi-client/log"
	"lingzhi-client/model"
)

// Machine 轮次状态机，每个会话一个实例，只在事件循环中使用
type Machine struct {
	state     model.TurnState
	audioMode bool
	// 当前轮次文本消息的关联ID，轮次结束时清空
	messageID string
	logger    zerolog.Logger
}

// New 创建处于Listening状态的状态机
func New() *Machine {
	return &Machine{
		state:  model.Listening,
		logger: log.With("turn"),
	}
}

// State 当前轮次状态
func (m *Machine) State() model.TurnState {
	return m.state
}

// AudioMode 是否处于语音模式
func (m *Machine) AudioMode() bool {
	return m.audioMode
}

// MessageID 当前文本消息的关联ID，没有时为空
func (m *Machine) MessageID() string {
	return m.messageID
}

// StartAudioMode 启用语音模式，之后收到的音频才会播放
func (m *Machine) StartAudioMode() {
	m.audioMode = true
}

// StopAudioMode 无论当前状态如何都回到Listening，并要求停止采集和可视化
func (m *Machine) StopAudioMode() []Effect {
	var effects []Effect
	if m.state == model.Speaking {
		effects = append(effects, ExitSpeaking{})
	}
	effects = append(effects, StopCapture{}, StopVisualizer{})
	m.audioMode = false
	m.transition(model.Listening)
	return effects
}

// HandleEnvelope 处理一条收到的消息，返回需要执行的副作用
// 参数:
//   - env: 已解析的消息
//
// 返回:
//   - []Effect: 按顺序执行的副作用，可能为空
func (m *Machine) HandleEnvelope(env model.Envelope) []Effect {
	// 打断优先于其他所有字段
	if env.Interrupted {
		return m.interrupt()
	}

	if env.TurnComplete {
		m.messageID = ""
		if m.state == model.Speaking {
			m.transition(model.Listening)
			return []Effect{ExitSpeaking{}}
		}
		return nil
	}

	switch {
	case env.IsAudio():
		return m.handleAudio(env)
	case env.IsText():
		if m.messageID == "" {
			m.messageID = uuid.NewString()
		}
		return []Effect{AppendText{MessageID: m.messageID, Text: env.Data}}
	}

	return nil
}

func (m *Machine) interrupt() []Effect {
	effects := []Effect{FlushPlayback{}}
	if m.state == model.Speaking {
		effects = append(effects, ExitSpeaking{})
	}
	m.messageID = ""
	m.transition(model.Interrupted)
	m.transition(model.Listening)
	return effects
}

func (m *Machine) handleAudio(env model.Envelope) []Effect {
	if !m.audioMode {
		m.logger.Debug().Msg("文本模式下收到音频，忽略")
		return nil
	}

	data, err := codec.AudioData(env)
	if err != nil {
		m.logger.Warn().Err(err).Msg("音频数据无法解码，忽略")
		return nil
	}

	if m.state == model.Speaking {
		return []Effect{PlayAudio{Data: data}}
	}
	m.transition(model.Speaking)
	return []Effect{PlayAudio{Data: data}, EnterSpeaking{}}
}

func (m *Machine) transition(to model.TurnState) {
	if m.state == to {
		return
	}
	m.logger.Debug().Stringer("from", m.state).Stringer("to", to).Msg("轮次状态变化")
	m.state = to
}
