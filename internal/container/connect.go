package container

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/connector"
	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/metrics"
	"github.com/lk2023060901/wsgarden/pkg/util/conc"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
	"github.com/lk2023060901/wsgarden/pkg/util/typeutil"
)

// 连接尝试的状态，超时与传输完成通过 CAS 竞争，保证超时后不会再执行 OnOpen。
const (
	attemptPending int32 = iota
	attemptOpening
	attemptCancelled
)

// Connect 以声明式客户端端点连接服务端。
//
// instance 沿 Unwrap 链必须能找到 endpoint.ClientDeclarer 与 session.Endpoint。
// 返回时 OnOpen 已执行完毕。
func (c *Container) Connect(ctx context.Context, instance any, rawURL string) (*session.Session, error) {
	if c.IsClosed() {
		return nil, merr.WrapErrContainerClosed()
	}
	handler, ok := endpoint.FindEndpoint(instance)
	if !ok {
		return nil, merr.WrapErrNotAClientEndpoint(fmt.Sprintf("%T", instance), "no endpoint callbacks")
	}
	ep, err := c.registry.ResolveClient(instance)
	if err != nil {
		return nil, err
	}
	return c.connect(ctx, ep, ep, handler, rawURL)
}

// ConnectWithConfig 以显式描述连接服务端，不需要类型声明。
func (c *Container) ConnectWithConfig(ctx context.Context, handler session.Endpoint, cfg endpoint.ClientConfig, rawURL string) (*session.Session, error) {
	if c.IsClosed() {
		return nil, merr.WrapErrContainerClosed()
	}
	if handler == nil {
		return nil, merr.WrapErrParameterMissing("endpoint")
	}
	ep, err := endpoint.NewConfiguredClientEndpoint(fmt.Sprintf("%T", handler), cfg, c.registry.Codecs())
	if err != nil {
		return nil, err
	}
	owner := &adhocOwner{ConfiguredClientEndpoint: ep, set: c.adhoc}
	c.adhoc.Insert(ep)
	sess, err := c.connect(ctx, ep, owner, handler, rawURL)
	if err != nil {
		c.adhoc.TryRemove(ep)
	}
	return sess, err
}

func (c *Container) connect(
	ctx context.Context,
	ep *endpoint.ConfiguredClientEndpoint,
	owner attacher,
	handler session.Endpoint,
	rawURL string,
) (*session.Session, error) {
	u, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	cfg := ep.Config()
	timeout := c.cfg.ConnectTimeout
	if t, ok := cfg.ConnectTimeout(); ok {
		timeout = t
	}
	ctx = log.WithEndpoint(ctx, ep.Identity())
	logger := log.Ctx(ctx).With(zap.String("url", u.String()))

	req := &connector.Request{
		URL:         u,
		BindAddress: c.cfg.ClientBindAddress,
		Negotiation: negotiation.NewClientNegotiation(cfg.PreferredSubprotocols, cfg.Extensions, cfg.Configurator),
	}
	if connector.IsSecure(u) {
		req.TLSConfig = connector.ResolveTLS(c.tlsProviders, u)
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := atomic.NewInt32(attemptPending)
	future := conc.Go(func() (*session.Session, error) {
		res, err := c.transport.Connect(attemptCtx, req)
		if err != nil {
			return nil, err
		}
		if !state.CompareAndSwap(attemptPending, attemptOpening) {
			_ = res.Channel.Close()
			return nil, context.Canceled
		}
		// 客户端声明的扩展之外的扩展一律视为协商失败
		if _, err := negotiation.VerifyClientExtensions(res.Extensions, cfg.Extensions); err != nil {
			_ = res.Channel.WriteClose(session.NewCloseReason(session.CloseMandatoryExtension, "extension mismatch"))
			_ = res.Channel.Close()
			return nil, err
		}
		return c.openSession(sessionSpec{
			side:        network.ClientSide,
			channel:     res.Channel,
			instance:    handler,
			owner:       owner,
			encoding:    ep.Encoding(),
			subprotocol: res.Subprotocol,
			extensions:  res.Extensions,
			uri:         u,
			props:       cfg.UserProperties,
		})
	})

	select {
	case <-future.Inner():
	case <-attemptCtx.Done():
		if state.CompareAndSwap(attemptPending, attemptCancelled) {
			cancel()
			if errors.Is(ctx.Err(), context.Canceled) {
				metrics.ContainerConnectDuration.WithLabelValues(metrics.FailLabel).Observe(time.Since(start).Seconds())
				return nil, merr.WrapErrIoFailed(u.String(), ctx.Err())
			}
			metrics.ContainerConnectDuration.WithLabelValues(metrics.TimeoutLabel).Observe(time.Since(start).Seconds())
			logger.Warn("connect timed out", zap.Duration("timeout", timeout))
			return nil, merr.WrapErrIoTimeout(u.String(), timeout)
		}
		// 已进入 OnOpen，等待其完成
	}

	sess, err := future.Await()
	if err != nil {
		metrics.ContainerConnectDuration.WithLabelValues(metrics.FailLabel).Observe(time.Since(start).Seconds())
		logger.Info("connect failed", zap.Bool("retriable", merr.IsRetryableErr(err)), zap.Error(err))
		if errors.IsAny(err, merr.ErrIoFailed, merr.ErrExtensionMismatch, merr.ErrContainerClosed, merr.ErrSessionClosed) {
			return nil, err
		}
		return nil, merr.WrapErrIoFailed(u.String(), err)
	}
	metrics.ContainerConnectDuration.WithLabelValues(metrics.SuccessLabel).Observe(time.Since(start).Seconds())
	logger.Debug("client session opened", zap.Uint64("sessionID", sess.ID()), zap.String("subprotocol", sess.Subprotocol()))
	return sess, nil
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("invalid url %q: %v", rawURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, merr.WrapErrParameterInvalidMsg("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

// adhocOwner 在会话结束后将临时客户端端点移出容器。
type adhocOwner struct {
	*endpoint.ConfiguredClientEndpoint
	set *typeutil.ConcurrentSet[*endpoint.ConfiguredClientEndpoint]
}

func (o *adhocOwner) Detach(s *session.Session) {
	o.ConfiguredClientEndpoint.Detach(s)
	if o.Sessions().Count() == 0 {
		o.set.TryRemove(o.ConfiguredClientEndpoint)
	}
}
