//go:build portaudio

package device

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"lingzhi-client/audio"
	"lingzhi-client/log"
)

// System 同时提供采集和播放，实现 audio.Capturer 和 audio.Player
type System struct {
	cfg    Config
	logger zerolog.Logger
}

// New 初始化PortAudio
func New(cfg Config) (*System, error) {
	cfg.defaults()
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrap(err, "初始化PortAudio失败")
	}
	return &System{cfg: cfg, logger: log.With("audio")}, nil
}

// Close 释放PortAudio
func (s *System) Close() error {
	return portaudio.Terminate()
}

type capture struct {
	stream *portaudio.Stream
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartCapture implements audio.Capturer.
func (s *System) StartCapture(onFrame func([]byte)) (audio.CaptureContext, error) {
	in := make([]int16, s.cfg.InputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(s.cfg.InputSampleRate), len(in), in)
	if err != nil {
		return nil, errors.Wrap(err, "打开麦克风失败")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, errors.Wrap(err, "启动麦克风失败")
	}

	s.logger.Info().
		Int("sample_rate", s.cfg.InputSampleRate).
		Int("frames_per_buffer", len(in)).
		Msg("麦克风已打开")

	c := &capture{
		stream: stream,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.quit:
				return
			default:
			}
			if err := stream.Read(); err != nil {
				// 输入溢出之类的错误，稍后重试
				s.logger.Debug().Err(err).Msg("读取麦克风失败")
				time.Sleep(10 * time.Millisecond)
				continue
			}
			onFrame(audio.Int16ToBytes(in))
		}
	}()
	return c, nil
}

func (c *capture) Stop() {
	c.once.Do(func() {
		close(c.quit)
		<-c.done
		_ = c.stream.Stop()
		_ = c.stream.Close()
	})
}

type playback struct {
	stream  *portaudio.Stream
	queue   chan []byte
	flush   atomic.Bool
	idle    time.Duration
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
	logger  zerolog.Logger
	dropped uint64
}

// StartPlayback implements audio.Player.
func (s *System) StartPlayback() (audio.PlaybackContext, error) {
	out := make([]int16, s.cfg.OutputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(s.cfg.OutputSampleRate), len(out), out)
	if err != nil {
		return nil, errors.Wrap(err, "打开扬声器失败")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, errors.Wrap(err, "启动扬声器失败")
	}

	p := &playback{
		stream: stream,
		queue:  make(chan []byte, playbackQueueSize),
		idle:   2 * time.Duration(len(out)) * time.Second / time.Duration(s.cfg.OutputSampleRate),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go p.run(out)
	return p, nil
}

// Enqueue 追加待播放音频，队列满时丢弃
func (p *playback) Enqueue(data []byte) {
	select {
	case p.queue <- data:
	default:
		p.dropped++
		p.logger.Warn().Uint64("dropped", p.dropped).Msg("播放队列已满，丢弃音频")
	}
}

// EndOfAudio 清空队列和播放缓冲
func (p *playback) EndOfAudio() {
	for {
		select {
		case <-p.queue:
		default:
			p.flush.Store(true)
			return
		}
	}
}

func (p *playback) Close() {
	p.once.Do(func() {
		close(p.quit)
		<-p.done
		_ = p.stream.Stop()
		_ = p.stream.Close()
	})
}

// run 播放协程。队列空闲超过两个缓冲周期时，把不足一个缓冲的尾巴补静音播完
func (p *playback) run(out []int16) {
	defer close(p.done)
	frameBytes := len(out) * 2
	buffer := make([]byte, 0, frameBytes*2)

	for {
		var idle <-chan time.Time
		if len(buffer) > 0 {
			idle = time.After(p.idle)
		}

		select {
		case <-p.quit:
			return
		case <-idle:
			if p.flush.Swap(false) {
				buffer = buffer[:0]
				continue
			}
			p.write(out, audio.PadFrame(buffer, frameBytes))
			buffer = buffer[:0]
		case data := <-p.queue:
			if p.flush.Swap(false) {
				buffer = buffer[:0]
			}
			buffer = append(buffer, data...)

			for len(buffer) >= frameBytes {
				if p.flush.Swap(false) {
					buffer = buffer[:0]
					break
				}
				p.write(out, buffer[:frameBytes])
				buffer = buffer[frameBytes:]
			}
		}
	}
}

func (p *playback) write(out []int16, frame []byte) {
	copy(out, audio.BytesToInt16(frame))
	if err := p.stream.Write(); err != nil {
		p.logger.Debug().Err(err).Msg("写入扬声器失败")
	}
}
