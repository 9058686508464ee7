// Package session 会话控制器：把连接管理器、音频聚合器、轮次状态机、
// 音频设备和展示层组合在同一个事件循环上。
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"lingzhi-client/aggregator"
	"lingzhi-client/audio"
	"lingzhi-client/codec"
	"lingzhi-client/log"
	"lingzhi-client/metrics"
	"lingzhi-client/model"
	"lingzhi-client/scheduler"
	"lingzhi-client/turn"
	"lingzhi-client/ui"
	"lingzhi-client/websocket"
)

// Config 会话配置
type Config struct {
	Server        websocket.Config
	FlushInterval time.Duration // 音频发送窗口，默认200ms
	AudioEnabled  bool          // 启动时直接进入语音模式
	LoopSize      int           // 事件循环队列长度
}

// Deps 外部协作者
type Deps struct {
	// Scheduler 定时器来源，为空时使用事件循环自身
	Scheduler scheduler.Scheduler
	Capturer  audio.Capturer
	Player    audio.Player
	Presenter ui.Presenter
}

// Session 一个进程内唯一的会话
type Session struct {
	cfg       Config
	loop      *scheduler.Loop
	conn      *websocket.Manager
	agg       *aggregator.Aggregator
	machine   *turn.Machine
	capturer  audio.Capturer
	player    audio.Player
	presenter ui.Presenter
	logger    zerolog.Logger

	session    model.Session
	capture    audio.CaptureContext
	captureGen uint64
	playback   audio.PlaybackContext
}

// New 创建会话，生成会话ID
func New(cfg Config, deps Deps) *Session {
	loop := scheduler.NewLoop(cfg.LoopSize)
	sched := deps.Scheduler
	if sched == nil {
		sched = loop
	}
	presenter := deps.Presenter
	if presenter == nil {
		presenter = ui.Nop{}
	}

	s := &Session{
		cfg:       cfg,
		loop:      loop,
		machine:   turn.New(),
		capturer:  deps.Capturer,
		player:    deps.Player,
		presenter: presenter,
		session: model.Session{
			ID:    uuid.NewString(),
			State: model.Disconnected,
		},
	}
	s.logger = log.With("session").With().Str("session_id", s.session.ID).Logger()

	s.conn = websocket.NewManager(cfg.Server, loop, sched)
	s.conn.Subscribe(s.handleEvent)
	s.conn.SetAudioModeSource(func() bool { return s.session.AudioMode })
	s.agg = aggregator.New(sched, s.conn, cfg.FlushInterval)
	return s
}

// ID 会话ID，整个进程生命周期内不变
func (s *Session) ID() string {
	return s.session.ID
}

// Run 建立连接并运行事件循环，直到ctx被取消
func (s *Session) Run(ctx context.Context) error {
	s.loop.Post(func() {
		if s.cfg.AudioEnabled {
			if err := s.enableAudio(); err != nil {
				s.logger.Warn().Err(err).Msg("启动时无法进入语音模式，使用文本模式")
			}
		}
		s.logger.Info().Bool("audio", s.session.AudioMode).Msg("会话开始")
		s.conn.Connect(s.session.ID, s.session.AudioMode)
	})

	err := s.loop.Run(ctx)

	// 循环已退出，此后只有当前协程访问会话状态
	if s.session.AudioMode {
		s.disableAudio()
	}
	s.conn.Close(true)
	s.conn.Shutdown()
	s.session.State = model.Disconnected
	s.logger.Info().Msg("会话结束")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// StartAudioMode 开启语音模式：先启动播放再启动采集，成功后以语音模式重连
func (s *Session) StartAudioMode() error {
	var err error
	if callErr := s.loop.Call(func() {
		if s.session.AudioMode {
			return
		}
		if err = s.enableAudio(); err != nil {
			return
		}
		s.reconnect(true)
	}); callErr != nil {
		return callErr
	}
	return err
}

// StopAudioMode 关闭语音模式，发送剩余音频后以文本模式重连
func (s *Session) StopAudioMode() error {
	return s.loop.Call(func() {
		if !s.session.AudioMode {
			return
		}
		s.disableAudio()
		s.reconnect(false)
	})
}

// reconnect 切换模式时重连。拆除旧连接不会产生Closed事件，需要自己更新展示层
func (s *Session) reconnect(audioMode bool) {
	s.presenter.SetConnected(false)
	s.conn.Connect(s.session.ID, audioMode)
}

// SendText 发送一条文本消息，未连接时丢弃
func (s *Session) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.loop.Call(func() {
		s.conn.Send(codec.EncodeText(text))
	})
}

// Close 用户主动结束会话：停止语音并关闭连接，不会重连
func (s *Session) Close() error {
	return s.loop.Call(func() {
		if s.session.AudioMode {
			s.disableAudio()
		}
		s.conn.Close(true)
	})
}

// Snapshot 当前会话状态和轮次状态
func (s *Session) Snapshot() (model.Session, model.TurnState, error) {
	var (
		sess  model.Session
		state model.TurnState
	)
	err := s.loop.Call(func() {
		sess = s.session
		sess.State = s.conn.State()
		state = s.machine.State()
	})
	return sess, state, err
}

// enableAudio 打开设备并设置语音标志，失败时回滚到文本模式
func (s *Session) enableAudio() error {
	if s.player == nil || s.capturer == nil {
		return s.audioFailed(audio.ErrUnavailable)
	}

	s.session.AudioMode = true
	s.machine.StartAudioMode()

	playback, err := s.player.StartPlayback()
	if err != nil {
		return s.audioFailed(err)
	}

	s.captureGen++
	gen := s.captureGen
	capture, err := s.capturer.StartCapture(func(frame []byte) {
		// 设备会复用缓冲区
		data := make([]byte, len(frame))
		copy(data, frame)
		// 循环繁忙时丢帧，停止采集时会在循环内等待采集协程退出
		if !s.loop.TryPost(func() { s.handleFrame(gen, data) }) {
			metrics.RecordCaptureDropped()
		}
	})
	if err != nil {
		playback.Close()
		return s.audioFailed(err)
	}

	s.playback = playback
	s.capture = capture
	s.presenter.StartVisualizer()
	metrics.SetAudioMode(true)
	s.logger.Info().Msg("语音模式已开启")
	return nil
}

func (s *Session) audioFailed(err error) error {
	s.session.AudioMode = false
	s.machine.StopAudioMode()
	s.logger.Error().Err(err).Msg("无法访问音频设备")
	s.presenter.Notice("无法访问麦克风或扬声器: " + err.Error())
	return errors.Wrap(err, "开启语音模式失败")
}

// disableAudio 停止采集并发送剩余音频，然后关闭播放
func (s *Session) disableAudio() {
	s.apply(s.machine.StopAudioMode())
	if s.playback != nil {
		s.playback.Close()
		s.playback = nil
	}
	s.session.AudioMode = false
	metrics.SetAudioMode(false)
	s.logger.Info().Msg("语音模式已关闭")
}

func (s *Session) handleFrame(gen uint64, frame []byte) {
	if s.capture == nil || gen != s.captureGen {
		return
	}
	s.agg.Push(frame)
	s.presenter.SetLevel(audio.Level(frame))
}

func (s *Session) handleEvent(ev websocket.Event) {
	s.session.State = s.conn.State()

	switch e := ev.(type) {
	case websocket.Opened:
		s.presenter.SetConnected(true)
	case websocket.Closed:
		s.presenter.SetConnected(false)
	case websocket.Error:
		s.logger.Debug().Err(e.Err).Msg("连接错误")
	case websocket.Message:
		s.handleMessage(e.Data)
	}
}

func (s *Session) handleMessage(raw []byte) {
	env, err := codec.Decode(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("无法解析的消息，已丢弃")
		metrics.RecordDecodeError()
		return
	}
	metrics.RecordReceived(kindOf(env))

	if env.IsText() {
		s.logger.Debug().Str("text", env.Data).Msg("[AGENT TO CLIENT] 文本")
	}
	s.apply(s.machine.HandleEnvelope(env))
}

func (s *Session) apply(effects []turn.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case turn.PlayAudio:
			if s.playback != nil {
				s.playback.Enqueue(e.Data)
			}
		case turn.FlushPlayback:
			if s.playback != nil {
				s.playback.EndOfAudio()
			}
		case turn.EnterSpeaking:
			s.presenter.SetSpeaking(true)
		case turn.ExitSpeaking:
			s.presenter.SetSpeaking(false)
		case turn.AppendText:
			s.presenter.AppendText(e.MessageID, e.Text)
		case turn.StopCapture:
			if s.capture != nil {
				s.capture.Stop()
				s.capture = nil
			}
			s.agg.Stop()
		case turn.StopVisualizer:
			s.presenter.StopVisualizer()
		}
	}
}

func kindOf(env model.Envelope) string {
	switch {
	case env.Interrupted:
		return "interrupted"
	case env.TurnComplete:
		return "turn_complete"
	case env.IsAudio():
		return "audio"
	case env.IsText():
		return "text"
	default:
		return "other"
	}
}
