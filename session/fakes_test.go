package session

import (
	"sync"

	"github.com/pkg/errors"

	"lingzhi-client/audio"
)

type fakeCapturer struct {
	mu      sync.Mutex
	err     error
	onFrame func([]byte)
	starts  int
	stops   int
}

func (c *fakeCapturer) StartCapture(onFrame func([]byte)) (audio.CaptureContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.starts++
	c.onFrame = onFrame
	return &fakeCapture{c: c}, nil
}

// emit 模拟设备回调，复用同一个缓冲区
func (c *fakeCapturer) emit(frame []byte) {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	if fn != nil {
		buf := make([]byte, len(frame))
		copy(buf, frame)
		fn(buf)
		for i := range buf {
			buf[i] = 0xee
		}
	}
}

func (c *fakeCapturer) counts() (starts, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}

type fakeCapture struct {
	c *fakeCapturer
}

func (f *fakeCapture) Stop() {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	f.c.stops++
	f.c.onFrame = nil
}

type fakePlayer struct {
	mu       sync.Mutex
	err      error
	starts   int
	playback *fakePlayback
}

func (p *fakePlayer) StartPlayback() (audio.PlaybackContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.starts++
	p.playback = &fakePlayback{}
	return p.playback, nil
}

func (p *fakePlayer) current() *fakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playback
}

type fakePlayback struct {
	mu     sync.Mutex
	queued []byte
	ends   int
	closed bool
}

func (p *fakePlayback) Enqueue(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, data...)
}

func (p *fakePlayback) EndOfAudio() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = nil
	p.ends++
}

func (p *fakePlayback) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePlayback) snapshot() ([]byte, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.queued...), p.ends, p.closed
}

// recorder 记录展示层收到的事件
type recorder struct {
	mu         sync.Mutex
	opened     int
	connected  bool
	history    []bool
	speaking   []bool
	texts      map[string]string
	visualizer bool
	levels     []float64
	notices    []string
}

func newRecorder() *recorder {
	return &recorder{texts: make(map[string]string)}
}

func (r *recorder) SetConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if connected {
		r.opened++
	}
	r.connected = connected
	r.history = append(r.history, connected)
}

func (r *recorder) SetSpeaking(speaking bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaking = append(r.speaking, speaking)
}

func (r *recorder) AppendText(id, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts[id] += text
}

func (r *recorder) StartVisualizer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visualizer = true
}

func (r *recorder) StopVisualizer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visualizer = false
}

func (r *recorder) SetLevel(level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
}

func (r *recorder) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, msg)
}

func (r *recorder) read(fn func(r *recorder)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

var errNoDevice = errors.New("no device")
