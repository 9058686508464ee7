// Package aggregator 把采集回调送来的PCM帧按固定时间窗口合并成一条消息发送。
package aggregator

import (
	"time"

	"github.com/rs/zerolog"

	"lingzhi-client/codec"
	"lingzhi-client/log"
	"lingzhi-client/metrics"
	"lingzhi-client/model"
	"lingzhi-client/scheduler"
)

// DefaultFlushInterval 默认发送窗口200毫秒
const DefaultFlushInterval = 200 * time.Millisecond

// Sender 接收合并后的消息，由连接管理器实现
type Sender interface {
	Send(env model.Envelope)
}

// Aggregator 音频分块聚合器。
// 所有方法必须在同一个事件循环中调用。
type Aggregator struct {
	sched    scheduler.Scheduler
	sender   Sender
	interval time.Duration
	logger   zerolog.Logger

	buffer [][]byte
	timer  scheduler.Timer

	flushes int
}

// New 创建聚合器，interval<=0 时使用默认窗口
func New(sched scheduler.Scheduler, sender Sender, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Aggregator{
		sched:    sched,
		sender:   sender,
		interval: interval,
		logger:   log.With("aggregator"),
	}
}

// Push 追加一帧音频。没有进行中的窗口时从这一帧开始一个新窗口
func (a *Aggregator) Push(chunk []byte) {
	// 空帧既不发送也不开启窗口
	if len(chunk) == 0 {
		return
	}
	// 复制一份，采集层可能复用缓冲区
	c := make([]byte, len(chunk))
	copy(c, chunk)
	a.buffer = append(a.buffer, c)

	if a.timer == nil {
		a.timer = a.sched.AfterFunc(a.interval, a.Flush)
	}
}

// Flush 结束当前窗口，合并缓冲区中的所有帧并发送。缓冲区为空时不发送
func (a *Aggregator) Flush() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if len(a.buffer) == 0 {
		return
	}

	total := 0
	for _, c := range a.buffer {
		total += len(c)
	}
	combined := make([]byte, 0, total)
	for _, c := range a.buffer {
		combined = append(combined, c...)
	}
	a.buffer = nil

	a.sender.Send(codec.EncodeAudio(combined))
	a.flushes++
	metrics.RecordFlush(total)
	a.logger.Debug().Int("bytes", total).Msg("[CLIENT TO AGENT] 发送音频")
}

// Stop 取消定时器；缓冲区非空时同步发送最后一次
func (a *Aggregator) Stop() {
	a.Flush()
}

// Buffered 返回缓冲区中的帧数
func (a *Aggregator) Buffered() int {
	return len(a.buffer)
}

// Running 是否有进行中的窗口
func (a *Aggregator) Running() bool {
	return a.timer != nil
}

// Flushes 返回累计发送次数
func (a *Aggregator) Flushes() int {
	return a.flushes
}
