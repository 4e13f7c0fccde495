package container

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/handshake"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// Outcome 为一次服务端升级请求的处理结果。
type Outcome int

const (
	OutcomeUpgraded Outcome = iota
	// OutcomeNotMatched 没有端点匹配请求路径
	OutcomeNotMatched
	// OutcomeUnavailable 容器已暂停或关闭
	OutcomeUnavailable
	// OutcomeBadRequest 没有握手策略接受该请求
	OutcomeBadRequest
	// OutcomeRejected 握手策略拒绝了请求，exchange 已由策略结束
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpgraded:
		return "upgraded"
	case OutcomeNotMatched:
		return "not_matched"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Upgrade 按请求路径匹配服务端端点并完成升级。
//
// 未升级时 exchange 保持打开，由调用方根据 Outcome 决定状态码；OutcomeRejected 除外。
func (c *Container) Upgrade(ex handshake.Exchange) (Outcome, error) {
	if c.IsClosed() {
		return OutcomeUnavailable, merr.WrapErrContainerClosed()
	}
	path := "/"
	if u := ex.RequestURI(); u != nil && u.Path != "" {
		path = u.Path
	}
	ep, params, ok := c.registry.Match(path)
	if !ok {
		return OutcomeNotMatched, nil
	}
	state, err := c.DoUpgrade(ex, ep, params)
	switch {
	case state == handshake.StateUpgraded:
		return OutcomeUpgraded, err
	case err != nil:
		return OutcomeRejected, err
	default:
		return OutcomeBadRequest, nil
	}
}

// DoUpgrade 对已匹配的端点执行握手，升级成功后创建会话并同步派发 OnOpen。
func (c *Container) DoUpgrade(ex handshake.Exchange, ep *endpoint.ConfiguredServerEndpoint, params map[string]string) (handshake.State, error) {
	if c.IsClosed() {
		return handshake.StateRejected, merr.WrapErrContainerClosed()
	}
	target := &handshake.Target{
		Endpoint:            ep,
		PathParameters:      params,
		InstalledExtensions: c.installed,
	}
	return c.handshakes.Perform(ex, target, func(res *handshake.Result) error {
		instance, err := ep.NewInstance()
		if err != nil {
			_ = res.Channel.WriteClose(session.NewCloseReason(session.CloseUnexpectedCondition, ""))
			_ = res.Channel.Close()
			return err
		}
		req := res.Request
		if req == nil {
			req = &endpoint.HandshakeRequest{Headers: ex.RequestHeaders(), RequestURI: ex.RequestURI(), PathParameters: params}
		}
		_, err = c.openSession(sessionSpec{
			side:        network.ServerSide,
			channel:     res.Channel,
			instance:    instance,
			owner:       ep,
			encoding:    ep.Encoding(),
			subprotocol: res.Subprotocol,
			extensions:  res.Extensions,
			uri:         req.RequestURI,
			pathParams:  req.PathParameters,
			props:       ep.Config().UserProperties,
		})
		return err
	})
}

// ServeHTTP 将容器挂载为 http.Handler。
// 请求头中的链路上下文按全局 propagator 提取，握手日志带 traceID。
func (c *Container) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r = r.WithContext(otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header)))
	ex := handshake.NewHTTPExchange(w, r, c.cfg.HandshakeTimeout, c.cfg.BufferSize)
	outcome, err := c.Upgrade(ex)
	logger := log.Ctx(r.Context()).With(zap.String("path", r.URL.Path), zap.Stringer("outcome", outcome))
	switch outcome {
	case OutcomeUpgraded:
		if err != nil {
			logger.Warn("session open failed after upgrade", zap.Error(err))
		}
	case OutcomeNotMatched:
		ex.EndExchange(http.StatusNotFound, http.StatusText(http.StatusNotFound))
	case OutcomeUnavailable:
		ex.EndExchange(http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
	case OutcomeBadRequest:
		ex.EndExchange(http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
	case OutcomeRejected:
		logger.Info("upgrade rejected", zap.Error(err))
		ex.EndExchange(http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
	}
}
