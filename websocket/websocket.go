// Package websocket 连接管理器：唯一持有与智能体之间双工连接的组件，
// 负责构建连接地址、收发消息以及意外断开后的自动重连。
package websocket

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"lingzhi-client/codec"
	"lingzhi-client/log"
	"lingzhi-client/metrics"
	"lingzhi-client/model"
	"lingzhi-client/scheduler"
)

const (
	// DefaultReconnectDelay 意外断开后重连前的固定等待时间
	DefaultReconnectDelay   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultReadLimit        = 16 * 1024 * 1024
	// 发送队列长度，满了之后丢弃
	sendQueueSize = 64
)

// Config 连接配置
type Config struct {
	Scheme           string        // ws 或 wss
	Host             string        // 主机:端口
	HandshakeTimeout time.Duration // 握手超时
	WriteTimeout     time.Duration // 单条消息写超时
	ReconnectDelay   time.Duration // 重连等待时间
	ReadLimit        int64         // 单条消息最大字节数
}

func (c *Config) defaults() {
	if c.Scheme == "" {
		c.Scheme = "ws"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
}

// Executor 把回调投递到事件循环，scheduler.Loop 实现了它
type Executor interface {
	Post(fn func()) bool
}

// connection 一次拨号对应的连接
type connection struct {
	gen        uint64
	conn       *websocket.Conn
	sendChan   chan []byte
	quit       chan struct{} // 通知写协程发送剩余消息后关闭
	quitOnce   sync.Once
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Manager 连接管理器。除构造函数外，所有方法都必须在事件循环中调用
type Manager struct {
	cfg    Config
	loop   Executor
	sched  scheduler.Scheduler
	dialer *websocket.Dialer
	logger zerolog.Logger

	subscriber func(Event)
	audioMode  func() bool

	state      model.ConnectionState
	sessionID  string
	lastAudio  bool
	current    *connection
	generation uint64
	reconnect  scheduler.Timer
}

// NewManager 创建连接管理器
// 参数:
//   - cfg: 连接配置，零值字段使用默认值
//   - loop: 事件循环，网络协程通过它回到单线程上下文
//   - sched: 重连定时器使用的调度器
func NewManager(cfg Config, loop Executor, sched scheduler.Scheduler) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:   cfg,
		loop:  loop,
		sched: sched,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		logger: log.With("websocket"),
		state:  model.Disconnected,
	}
}

// Subscribe 设置事件订阅者，事件在事件循环中同步回调
func (m *Manager) Subscribe(fn func(Event)) {
	m.subscriber = fn
}

// SetAudioModeSource 重连时从这里读取当前的语音模式标志
func (m *Manager) SetAudioModeSource(fn func() bool) {
	m.audioMode = fn
}

// State 当前连接状态
func (m *Manager) State() model.ConnectionState {
	return m.state
}

// ReconnectPending 是否有等待中的重连
func (m *Manager) ReconnectPending() bool {
	return m.reconnect != nil
}

// Target 构建连接地址：scheme://host/ws/<sessionID>?is_audio=<bool>
func (m *Manager) Target(sessionID string, audioMode bool) string {
	u := url.URL{
		Scheme:   m.cfg.Scheme,
		Host:     m.cfg.Host,
		Path:     "/ws/" + sessionID,
		RawQuery: url.Values{"is_audio": []string{fmt.Sprintf("%t", audioMode)}}.Encode(),
	}
	return u.String()
}

// Connect 建立连接。已有连接或正在连接时先拆除旧连接，拆除不会触发重连
func (m *Manager) Connect(sessionID string, audioMode bool) {
	m.cancelReconnect()
	if m.current != nil {
		m.logger.Debug().Stringer("state", m.state).Msg("拆除旧连接")
		m.teardown(m.current)
		m.current = nil
	}

	m.sessionID = sessionID
	m.lastAudio = audioMode
	m.generation++
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		gen:        m.generation,
		sendChan:   make(chan []byte, sendQueueSize),
		quit:       make(chan struct{}),
		ctx:        ctx,
		cancelFunc: cancel,
	}
	m.current = c
	m.setState(model.Connecting)

	target := m.Target(sessionID, audioMode)
	m.logger.Info().Str("url", target).Msg("正在连接")

	go func() {
		conn, resp, err := m.dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if !m.loop.Post(func() { m.handleDial(c, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

// Send 仅在已连接时发送；否则记录后丢弃，不向调用方返回错误
func (m *Manager) Send(env model.Envelope) {
	if m.state != model.Connected || m.current == nil {
		m.logger.Debug().Stringer("state", m.state).Str("mime_type", env.MimeType).Msg("未连接，丢弃消息")
		metrics.RecordDropped()
		return
	}

	data, err := codec.Marshal(env)
	if err != nil {
		m.logger.Error().Err(err).Msg("消息编码失败")
		return
	}

	select {
	case m.current.sendChan <- data:
		metrics.RecordSent(env.MimeType)
	default:
		m.logger.Warn().Msg("发送队列已满，丢弃消息")
		metrics.RecordDropped()
	}
}

// Close 关闭连接。userInitiated为true时不会重连，并取消等待中的重连
func (m *Manager) Close(userInitiated bool) {
	if userInitiated {
		m.cancelReconnect()
	}
	c := m.current
	if c == nil {
		return
	}

	if userInitiated {
		m.setState(model.ClosingByUser)
	}
	// 读协程会随后报告Closed
	m.closeConnection(c)
}

// Shutdown 事件循环退出后调用，释放所有资源，不再投递事件
func (m *Manager) Shutdown() {
	m.cancelReconnect()
	if m.current != nil {
		m.teardown(m.current)
		m.current = nil
	}
	m.generation++
	m.setState(model.Disconnected)
}

func (m *Manager) handleDial(c *connection, conn *websocket.Conn, err error) {
	if c.gen != m.generation {
		// 已被新的Connect取代
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		if m.state == model.ClosingByUser {
			m.handleClosed(c, nil)
			return
		}
		err = errors.Wrap(err, "连接失败")
		m.logger.Error().Err(err).Msg("WebSocket连接失败")
		m.emit(Error{Err: err})
		m.handleClosed(c, err)
		return
	}

	conn.SetReadLimit(m.cfg.ReadLimit)
	c.conn = conn

	// 拨号期间用户已经关闭
	if m.state == model.ClosingByUser {
		_ = conn.Close()
		m.handleClosed(c, nil)
		return
	}

	m.setState(model.Connected)
	m.logger.Info().Msg("WebSocket连接已建立")

	go m.handleWrites(c)
	go m.handleReads(c)

	m.emit(Opened{})
}

func (m *Manager) handleClosed(c *connection, err error) {
	if c.gen != m.generation {
		return
	}
	c.cancelFunc()
	m.current = nil

	userInitiated := m.state == model.ClosingByUser
	m.setState(model.Disconnected)
	m.logger.Info().Bool("user_initiated", userInitiated).Msg("WebSocket连接已关闭")
	m.emit(Closed{UserInitiated: userInitiated, Err: err})

	if !userInitiated {
		m.scheduleReconnect()
	}
}

func (m *Manager) scheduleReconnect() {
	m.cancelReconnect()
	sessionID := m.sessionID
	m.reconnect = m.sched.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.reconnect = nil
		m.logger.Info().Msg("正在重连...")
		m.Connect(sessionID, m.currentAudioMode())
	})
	metrics.RecordReconnectScheduled()
	m.logger.Info().Dur("delay", m.cfg.ReconnectDelay).Msg("已安排重连")
}

func (m *Manager) cancelReconnect() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) currentAudioMode() bool {
	if m.audioMode != nil {
		return m.audioMode()
	}
	return m.lastAudio
}

// teardown 拆除连接并使其后续事件失效
func (m *Manager) teardown(c *connection) {
	m.generation++
	m.closeConnection(c)
}

// closeConnection 正在拨号时直接取消；已连接时由写协程发完队列中的消息再关闭
func (m *Manager) closeConnection(c *connection) {
	if c.conn == nil {
		c.cancelFunc()
		return
	}
	c.quitOnce.Do(func() { close(c.quit) })
}

func (m *Manager) setState(s model.ConnectionState) {
	m.state = s
	metrics.SetConnectionState(int(s))
}

func (m *Manager) emit(ev Event) {
	if m.subscriber != nil {
		m.subscriber(ev)
	}
}

// handleWrites 写协程：从发送队列取出消息写入连接
func (m *Manager) handleWrites(c *connection) {
	defer m.logger.Debug().Msg("写协程已退出")

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.quit:
			m.drainAndClose(c)
			return
		case data := <-c.sendChan:
			if err := m.write(c, data); err != nil {
				m.postError(c, errors.Wrap(err, "写入消息错误"))
				// 关闭连接，让读协程报告关闭
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (m *Manager) write(c *connection, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// drainAndClose 发送队列中剩余的消息和关闭帧，然后关闭连接
func (m *Manager) drainAndClose(c *connection) {
	defer func() {
		c.cancelFunc()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.sendChan:
			if err := m.write(c, data); err != nil {
				m.logger.Debug().Err(err).Msg("关闭前发送剩余消息失败")
				return
			}
		default:
			deadline := time.Now().Add(m.cfg.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				m.logger.Debug().Err(err).Msg("发送关闭帧失败")
			}
			return
		}
	}
}

// handleReads 读协程：读取消息并投递到事件循环
func (m *Manager) handleReads(c *connection) {
	defer m.logger.Debug().Msg("读协程已退出")

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr error
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				closeErr = err
			}
			if closeErr != nil && c.ctx.Err() == nil {
				m.postError(c, errors.Wrap(err, "读取消息错误"))
			}
			m.loop.Post(func() { m.handleClosed(c, closeErr) })
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			m.loop.Post(func() {
				if c.gen == m.generation {
					m.emit(Message{Data: data})
				}
			})
		default:
			m.logger.Debug().Int("type", messageType).Msg("忽略未知类型的消息")
		}
	}
}

func (m *Manager) postError(c *connection, err error) {
	m.loop.Post(func() {
		if c.gen != m.generation {
			return
		}
		m.logger.Error().Err(err).Msg("传输错误")
		m.emit(Error{Err: err})
	})
}
