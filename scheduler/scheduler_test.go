package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_AfterFunc(t *testing.T) {
	m := NewManual()
	fired := 0
	m.AfterFunc(200*time.Millisecond, func() { fired++ })

	m.Advance(199 * time.Millisecond)
	assert.Equal(t, 0, fired)

	m.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)

	m.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_StopBeforeDue(t *testing.T) {
	m := NewManual()
	fired := false
	tm := m.AfterFunc(200*time.Millisecond, func() { fired = true })
	assert.Equal(t, 1, m.Pending())

	tm.Stop()
	assert.Equal(t, 0, m.Pending())
	m.Advance(time.Second)
	assert.False(t, fired)
	assert.Equal(t, time.Second, m.Now())
}

func TestManual_OrderAndReentrancy(t *testing.T) {
	m := NewManual()
	var order []string
	m.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "a")
		m.AfterFunc(50*time.Millisecond, func() { order = append(order, "c") })
	})
	m.AfterFunc(120*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, loop.Call(func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_PostAfterStop(t *testing.T) {
	loop := NewLoop(1)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Call(func() {}), ErrStopped)
}

func TestLoop_TimersRunOnLoop(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	var fired atomic.Int32
	onLoop := make(chan bool, 1)
	loop.AfterFunc(5*time.Millisecond, func() {
		fired.Add(1)
		// 在循环内执行时，Post不会被执行中的任务阻塞
		onLoop <- loop.Post(func() {})
	})

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, <-onLoop)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, loop.Call(func() {}))
	assert.Equal(t, int32(1), fired.Load())
}

func TestLoop_StoppedAfterFuncNeverRuns(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	var fired atomic.Bool
	tm := loop.AfterFunc(10*time.Millisecond, func() { fired.Store(true) })
	tm.Stop()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, loop.Call(func() {}))
	assert.False(t, fired.Load())
}

func TestLoop_TryPostWhenFull(t *testing.T) {
	loop := NewLoop(2)

	// 循环未运行，队列很快被填满
	assert.True(t, loop.TryPost(func() {}))
	assert.True(t, loop.TryPost(func() {}))
	assert.False(t, loop.TryPost(func() {}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	require.NoError(t, loop.Call(func() {}))
	assert.True(t, loop.TryPost(func() {}))

	cancel()
	<-errCh
	assert.False(t, loop.TryPost(func() {}))
}
