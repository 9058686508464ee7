// Package scheduler 提供单线程事件循环和定时器抽象。
//
// 会话核心的所有状态修改都在同一个事件循环中串行执行，设备和网络协程
// 只能通过 Post 投递闭包，因此核心状态不需要加锁。
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrStopped 事件循环已退出
var ErrStopped = errors.New("事件循环已停止")

// Timer 可取消的定时器
type Timer interface {
	// Stop 取消定时器，已投递但尚未执行的回调也不会再执行
	Stop()
}

// Scheduler 启动一次性回调
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop 单线程事件循环，同时实现 Scheduler，回调在循环内执行
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	doneOnce sync.Once
}

// NewLoop 创建事件循环，size为任务队列长度
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		tasks: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post 投递一个任务，可以在任意协程调用；循环退出后返回false
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case <-l.done:
		return false
	case l.tasks <- fn:
		return true
	}
}

// TryPost 与Post相同，但队列已满时立即返回false，不会阻塞调用方
func (l *Loop) TryPost(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	default:
		return false
	}
}

// Call 投递任务并等待执行完成。不能在循环内部调用，否则会死锁
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Run 串行执行任务，直到ctx被取消
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Done 循环退出时关闭
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) stop() {
	l.doneOnce.Do(func() { close(l.done) })
}

type loopTimer struct {
	stopped atomic.Bool
	cancel  func()
}

func (t *loopTimer) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		t.cancel()
	}
}

// AfterFunc 在d之后于循环内执行fn
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	tm := time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	t.cancel = func() { tm.Stop() }
	return t
}
