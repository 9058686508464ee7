package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lingzhi-client/codec"
	"lingzhi-client/log"
	"lingzhi-client/model"
)

// InterruptCommand 客户端发送这条文本时，智能体停止当前回复并发送打断信号
const InterruptCommand = "/interrupt"

// agentConnection 一个客户端连接
type agentConnection struct {
	conn         *websocket.Conn
	cfg          Config
	sessionID    string
	audioMode    bool
	responseChan chan model.Envelope
	ctx          context.Context
	cancelFunc   context.CancelFunc
	logger       zerolog.Logger

	mu        sync.Mutex
	turnAudio []byte      // 用户本轮说的话
	silence   *time.Timer // 静默计时
}

func newAgentConnection(conn *websocket.Conn, sessionID string, audioMode bool, cfg Config) *agentConnection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &agentConnection{
		conn:         conn,
		cfg:          cfg,
		sessionID:    sessionID,
		audioMode:    audioMode,
		responseChan: make(chan model.Envelope, 64),
		ctx:          ctx,
		cancelFunc:   cancel,
		logger:       log.With("loopback").With().Str("session_id", sessionID).Logger(),
	}

	// 启动响应处理协程
	go c.handleResponses()
	return c
}

// HandleConnection 连接的主循环，返回时关闭连接
func (c *agentConnection) HandleConnection() {
	defer func() {
		c.cancelFunc()
		c.stopSilenceTimer()
		_ = c.conn.Close()
		c.logger.Info().Msg("WebSocket连接已关闭")
	}()

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("读取消息错误")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug().Int("type", messageType).Msg("忽略非文本消息")
			continue
		}

		env, err := codec.Decode(message)
		if err != nil {
			c.logger.Warn().Err(err).Msg("无法解析客户端消息")
			continue
		}
		c.processMessage(env)
	}
}

func (c *agentConnection) processMessage(env model.Envelope) {
	switch {
	case env.IsAudio():
		c.handleAudioMessage(env)
	case env.IsText():
		c.handleTextMessage(env.Data)
	default:
		c.logger.Debug().Str("mime_type", env.MimeType).Msg("未知消息类型")
	}
}

// handleAudioMessage 累积用户音频，静默超时后回放
func (c *agentConnection) handleAudioMessage(env model.Envelope) {
	data, err := codec.AudioData(env)
	if err != nil {
		c.logger.Warn().Err(err).Msg("音频数据无法解码")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.turnAudio = append(c.turnAudio, data...)
	if c.silence != nil {
		c.silence.Stop()
	}
	c.silence = time.AfterFunc(c.cfg.SilenceTimeout, c.replyAudio)
}

// replyAudio 把本轮音频分帧回放，然后结束本轮
func (c *agentConnection) replyAudio() {
	c.mu.Lock()
	pcm := c.turnAudio
	c.turnAudio = nil
	c.silence = nil
	c.mu.Unlock()

	if len(pcm) == 0 {
		return
	}

	c.logger.Debug().Int("bytes", len(pcm)).Msg("[AGENT TO CLIENT] 回放音频")
	if c.audioMode {
		for start := 0; start < len(pcm); start += c.cfg.FrameBytes {
			end := min(start+c.cfg.FrameBytes, len(pcm))
			c.sendResponse(codec.EncodeAudio(pcm[start:end]))
		}
	}
	c.sendResponse(model.Envelope{TurnComplete: true})
}

func (c *agentConnection) handleTextMessage(text string) {
	c.logger.Debug().Str("text", text).Msg("[CLIENT TO AGENT] 文本")

	if text == InterruptCommand {
		c.stopSilenceTimer()
		c.mu.Lock()
		c.turnAudio = nil
		c.mu.Unlock()
		c.sendResponse(model.Envelope{Interrupted: true})
		return
	}

	c.sendResponse(codec.EncodeText(text))
	c.sendResponse(model.Envelope{TurnComplete: true})
}

func (c *agentConnection) stopSilenceTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
}

// sendResponse 把消息放入发送队列，连接关闭后丢弃
func (c *agentConnection) sendResponse(env model.Envelope) {
	select {
	case <-c.ctx.Done():
	case c.responseChan <- env:
	}
}

// handleResponses 从发送队列读取消息写入连接
func (c *agentConnection) handleResponses() {
	defer c.logger.Debug().Msg("响应处理协程已退出")

	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.responseChan:
			data, err := codec.Marshal(env)
			if err != nil {
				c.logger.Error().Err(err).Msg("JSON编码错误")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("写入消息错误")
				// 发生错误时取消上下文，触发连接关闭
				c.cancelFunc()
				_ = c.conn.Close()
				return
			}
		}
	}
}
