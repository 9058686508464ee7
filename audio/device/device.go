// Package device 基于PortAudio的默认输入输出设备。
// 需要使用 -tags portaudio 构建，否则 New 返回 audio.ErrUnavailable。
package device

const (
	DefaultInputSampleRate       = 16000
	DefaultOutputSampleRate      = 24000
	DefaultInputFramesPerBuffer  = 1600 // 16kHz下100ms
	DefaultOutputFramesPerBuffer = 960  // 24kHz下40ms
	playbackQueueSize            = 500
	channels                     = 1
)

// Config 设备参数
type Config struct {
	InputSampleRate       int
	OutputSampleRate      int
	InputFramesPerBuffer  int
	OutputFramesPerBuffer int
}

func (c *Config) defaults() {
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = DefaultInputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.InputFramesPerBuffer <= 0 {
		c.InputFramesPerBuffer = DefaultInputFramesPerBuffer
	}
	if c.OutputFramesPerBuffer <= 0 {
		c.OutputFramesPerBuffer = DefaultOutputFramesPerBuffer
	}
}
