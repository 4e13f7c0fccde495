package log

import "go.uber.org/atomic"

var _ LoggerBinder = (*Binder)(nil)

// LoggerBinder 由可替换 logger 的组件实现。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
	Logger() *MLogger
}

// Binder 嵌入到组件中保存组件级 logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// Logger 返回绑定的 logger，未绑定时回退到全局 logger。
func (w *Binder) Logger() *MLogger {
	if l := w.logger.Load(); l != nil {
		return l
	}
	return &MLogger{Logger: ctxL()}
}
