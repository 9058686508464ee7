package scheduler

import (
	"sort"
	"time"
)

// Manual 手动推进的模拟时钟，用于测试定时逻辑。
// 不是并发安全的，只能在单个协程（或事件循环内）使用。
type Manual struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	seq    int
	due    time.Duration
	fn     func()
	active bool
}

func (t *manualTimer) Stop() {
	t.active = false
}

// NewManual 创建时间为0的模拟时钟
func NewManual() *Manual {
	return &Manual{}
}

// Now 返回从创建起经过的模拟时间
func (m *Manual) Now() time.Duration {
	return m.now
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{seq: m.seq, due: m.now + d, fn: fn, active: true}
	m.timers = append(m.timers, t)
	return t
}

// Pending 返回仍然有效的定时器数量
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if t.active {
			n++
		}
	}
	return n
}

// Advance 推进时钟，按到期顺序同步执行所有到期的回调
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		next.active = false
		next.fn()
	}
	m.now = target
	m.compact()
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	var due []*manualTimer
	for _, t := range m.timers {
		if t.active && t.due <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	return due[0]
}

func (m *Manual) compact() {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.active {
			kept = append(kept, t)
		}
	}
	m.timers = kept
}
