package dispatch

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/metrics"
	"github.com/lk2023060901/wsgarden/pkg/util/conc"
)

// Mode 为回调派发模式。
type Mode string

const (
	// ModeDirect 在触发回调的协程上直接执行。
	ModeDirect Mode = "direct"
	// ModePool 提交到协程池执行，池拒绝时退化为直接执行。
	ModePool Mode = "pool"
)

// Action 执行一次回调任务。
type Action func(task func())

// SetupHandler 包装 Action，用于在回调前后恢复或清理环境（例如注入上下文、统计耗时）。
type SetupHandler func(next Action) Action

// Dispatcher 按配置的模式执行端点回调。
//
// SetupHandler 链在构造时组装一次，之后每次派发复用同一个 Action。
type Dispatcher struct {
	log.Binder

	mode   Mode
	pool   *conc.Pool[struct{}]
	invoke Action
}

type option struct {
	mode     Mode
	poolSize int
	handlers []SetupHandler
	poolOpts []conc.PoolOption
}

// Option 为 Dispatcher 的构造选项。
type Option func(opt *option)

// WithMode 设置派发模式，默认 ModeDirect。
func WithMode(mode Mode) Option {
	return func(opt *option) {
		opt.mode = mode
	}
}

// WithPoolSize 设置协程池容量，<= 0 时使用 CPU 核数。
func WithPoolSize(size int) Option {
	return func(opt *option) {
		opt.poolSize = size
	}
}

// WithSetupHandlers 追加 SetupHandler，先追加的位于外层。
func WithSetupHandlers(handlers ...SetupHandler) Option {
	return func(opt *option) {
		opt.handlers = append(opt.handlers, handlers...)
	}
}

// WithPoolOptions 透传协程池选项。
func WithPoolOptions(opts ...conc.PoolOption) Option {
	return func(opt *option) {
		opt.poolOpts = append(opt.poolOpts, opts...)
	}
}

func New(opts ...Option) *Dispatcher {
	opt := &option{mode: ModeDirect}
	for _, o := range opts {
		o(opt)
	}

	d := &Dispatcher{
		mode:   opt.mode,
		invoke: chain(opt.handlers),
	}
	if d.mode == ModePool {
		// 非阻塞：池满时立即返回 ErrPoolOverload，由调用方直接执行。
		poolOpts := append([]conc.PoolOption{
			conc.WithNonBlocking(true),
			conc.WithConcealPanic(true),
		}, opt.poolOpts...)
		d.pool = conc.NewPool[struct{}](opt.poolSize, poolOpts...)
	}
	return d
}

func chain(handlers []SetupHandler) Action {
	var action Action = func(task func()) {
		task()
	}
	for i := len(handlers) - 1; i >= 0; i-- {
		action = handlers[i](action)
	}
	return action
}

// Mode 返回派发模式。
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// Execute 派发一次回调，不会丢弃任务。
func (d *Dispatcher) Execute(task func()) {
	run := func() {
		d.invoke(task)
	}
	if d.pool == nil {
		run()
		return
	}
	if err := d.pool.Execute(run); err != nil {
		metrics.ContainerDispatchFallbacks.Inc()
		d.Logger().RatedWarn(10, "dispatch rejected by worker pool, run directly", zap.Error(err))
		run()
	}
}

// Close 释放协程池，已提交的任务仍会执行完毕。
func (d *Dispatcher) Close() {
	if d.pool != nil {
		d.pool.Release()
	}
}
