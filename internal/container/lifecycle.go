package container

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/metrics"
	"github.com/lk2023060901/wsgarden/pkg/util/conc"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// PauseListener 接收暂停完成与恢复通知，两者对同一次 Pause 至多触发其一。
type PauseListener interface {
	Paused()
	Resumed()
}

// PauseListenerFuncs 以函数实现 PauseListener，未设置的回调忽略。
type PauseListenerFuncs struct {
	OnPaused  func()
	OnResumed func()
}

func (f PauseListenerFuncs) Paused() {
	if f.OnPaused != nil {
		f.OnPaused()
	}
}

func (f PauseListenerFuncs) Resumed() {
	if f.OnResumed != nil {
		f.OnResumed()
	}
}

var _ PauseListener = PauseListenerFuncs{}

// Pause 停止接受新会话，并以 1001 关闭所有已打开的会话。
//
// 所有端点排空后通知 listener.Paused；排空前调用 Resume 则改为通知 listener.Resumed。
// 当前没有任何会话时 Paused 在调用方协程上同步执行。
func (c *Container) Pause(listener PauseListener) {
	c.mu.Lock()
	c.closed = true
	busy := make([]attacher, 0)
	for _, ep := range c.endpoints() {
		if ep.Sessions().Count() > 0 {
			busy = append(busy, ep)
		}
	}
	if len(busy) == 0 {
		c.mu.Unlock()
		c.Logger().Info("container paused, no open sessions")
		if listener != nil {
			listener.Paused()
		}
		return
	}
	if listener != nil {
		c.listeners = append(c.listeners, listener)
	}
	c.drainGen++
	gen := c.drainGen
	c.drainRemaining = len(busy)
	c.drainStart = time.Now()
	c.mu.Unlock()

	c.Logger().Info("container pausing", zap.Int("busyEndpoints", len(busy)))
	reason := session.NewCloseReason(session.CloseGoingAway, "container paused")
	for _, ep := range busy {
		ep.Sessions().NotifyEmpty(func() { c.endpointDrained(gen) })
		for _, sess := range ep.Sessions().Snapshot() {
			sess := sess
			conc.Go(func() (struct{}, error) {
				if err := sess.Close(reason); err != nil {
					c.Logger().Warn("close session on pause failed",
						zap.Uint64("sessionID", sess.ID()), zap.Error(err))
				}
				return struct{}{}, nil
			})
		}
	}
}

// endpointDrained 在某个端点会话集合清空后调用，gen 过期说明排空已被 Resume 或新一轮 Pause 取代。
func (c *Container) endpointDrained(gen uint64) {
	c.mu.Lock()
	if gen != c.drainGen {
		c.mu.Unlock()
		return
	}
	c.drainRemaining--
	if c.drainRemaining > 0 {
		c.mu.Unlock()
		return
	}
	listeners := c.listeners
	c.listeners = nil
	paused := c.closed
	elapsed := time.Since(c.drainStart)
	c.mu.Unlock()

	metrics.ContainerDrainDuration.Observe(elapsed.Seconds())
	c.Logger().Info("container paused", zap.Duration("drain", elapsed))
	if !paused {
		return
	}
	for _, l := range listeners {
		l.Paused()
	}
}

// Resume 重新接受会话。未完成的 Pause 监听者收到 Resumed，之后不会再收到 Paused。
// Close 之后调用无效。
func (c *Container) Resume() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.closed = false
	c.drainGen++
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	c.Logger().Info("container resumed", zap.Int("pendingListeners", len(listeners)))
	for _, l := range listeners {
		l.Resumed()
	}
}

// Close 永久关闭容器，最多等待 CloseWaitTime 让会话排空。
func (c *Container) Close() error {
	return c.CloseWithTimeout(c.cfg.CloseWaitTime)
}

// CloseWithTimeout 永久关闭容器，wait 内会话未全部结束时返回 ErrIoTimeout，
// 剩余会话仍会在后台完成关闭。
func (c *Container) CloseWithTimeout(wait time.Duration) error {
	c.Pause(nil)
	c.mu.Lock()
	c.terminated = true
	c.mu.Unlock()

	deadline := time.Now().Add(wait)
	g := errgroup.Group{}
	for _, ep := range c.endpoints() {
		ep := ep
		g.Go(func() error {
			if !ep.Sessions().AwaitEmpty(time.Until(deadline)) {
				return merr.WrapErrIoTimeout(ep.Identity(), wait)
			}
			return nil
		})
	}
	err := g.Wait()

	c.dispatcher.Close()
	c.cancel()
	if err != nil {
		c.Logger().Warn("container closed before all sessions drained", zap.Error(err))
		return err
	}
	c.Logger().Info("container closed")
	return nil
}
