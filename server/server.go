// Package server 本地回环智能体，与真实智能体说同样的协议，用于开发和测试：
// 收到的音频在静默后原样作为智能体语音播回，文本原样回显。
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"lingzhi-client/log"
)

const (
	DefaultAddr           = "127.0.0.1:8000"
	DefaultSilenceTimeout = 500 * time.Millisecond
	// 24kHz PCM16下100ms
	DefaultFrameBytes = 4800
)

// Config 回环服务配置
type Config struct {
	Addr string
	// SilenceTimeout 超过这个时间没有新的音频，认为用户一句话说完
	SilenceTimeout time.Duration
	// FrameBytes 回放时每条音频消息的大小
	FrameBytes int
}

// Server 回环智能体
type Server struct {
	cfg        Config
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New 创建回环智能体
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	if cfg.FrameBytes <= 0 {
		cfg.FrameBytes = DefaultFrameBytes
	}

	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// 本地开发用，允许所有来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 处理 /ws/{session_id}?is_audio=true|false
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWebSocket)
	return mux
}

// ListenAndServe 阻塞直到服务关闭
func (s *Server) ListenAndServe() error {
	log.Infof("正在启动回环智能体，监听地址: %s", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "回环智能体启动失败")
	}
	return nil
}

// Shutdown 关闭服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleWebSocket 将HTTP连接升级为WebSocket并为其创建会话连接
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.NotFound(w, r)
		return
	}
	audioMode := r.URL.Query().Get("is_audio") == "true"

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("升级连接失败: %v", err)
		return
	}

	log.Infof("新的WebSocket连接来自 %s，会话: %s，语音模式: %v", r.RemoteAddr, sessionID, audioMode)

	c := newAgentConnection(conn, sessionID, audioMode, s.cfg)
	go c.HandleConnection()
}
