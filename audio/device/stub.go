//go:build !portaudio

package device

import "lingzhi-client/audio"

// System 未启用PortAudio时的占位实现
type System struct{}

// New 没有PortAudio支持，总是返回 audio.ErrUnavailable
func New(cfg Config) (*System, error) {
	cfg.defaults()
	return nil, audio.ErrUnavailable
}

// StartCapture implements audio.Capturer.
func (s *System) StartCapture(func([]byte)) (audio.CaptureContext, error) {
	return nil, audio.ErrUnavailable
}

// StartPlayback implements audio.Player.
func (s *System) StartPlayback() (audio.PlaybackContext, error) {
	return nil, audio.ErrUnavailable
}

// Close 释放资源
func (s *System) Close() error {
	return nil
}
