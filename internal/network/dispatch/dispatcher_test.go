package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestDirectRunsInline(t *testing.T) {
	d := New()
	defer d.Close()
	assert.Equal(t, ModeDirect, d.Mode())

	ran := false
	d.Execute(func() { ran = true })
	assert.True(t, ran)
}

func TestSetupHandlersChainOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		trace []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		trace = append(trace, s)
	}
	wrap := func(name string) SetupHandler {
		return func(next Action) Action {
			record("build-" + name)
			return func(task func()) {
				record("enter-" + name)
				next(task)
				record("exit-" + name)
			}
		}
	}

	d := New(WithSetupHandlers(wrap("outer"), wrap("inner")))
	d.Execute(func() { record("task") })
	d.Execute(func() { record("task") })

	assert.Equal(t, []string{
		"build-inner", "build-outer",
		"enter-outer", "enter-inner", "task", "exit-inner", "exit-outer",
		"enter-outer", "enter-inner", "task", "exit-inner", "exit-outer",
	}, trace)
}

func TestPoolDispatch(t *testing.T) {
	d := New(WithMode(ModePool), WithPoolSize(4))
	defer d.Close()

	counter := atomic.NewInt32(0)
	wg := sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		d.Execute(func() {
			defer wg.Done()
			counter.Inc()
		})
	}
	wg.Wait()
	assert.EqualValues(t, 20, counter.Load())
}

func TestPoolRejectionFallsBackToDirect(t *testing.T) {
	d := New(WithMode(ModePool), WithPoolSize(1))
	defer d.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	d.Execute(func() {
		close(started)
		<-block
	})
	<-started

	// 池已满，任务应在当前协程直接执行而不是被丢弃
	ran := false
	d.Execute(func() { ran = true })
	assert.True(t, ran)

	close(block)
	assert.Eventually(t, func() bool {
		done := make(chan struct{})
		d.Execute(func() { close(done) })
		select {
		case <-done:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
