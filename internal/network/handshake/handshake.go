package handshake

import (
	"net/http"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/metrics"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// State 为一次升级请求所处的阶段。
type State int

const (
	StateOffered State = iota
	StateMatched
	StateUpgraded
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateOffered:
		return "offered"
	case StateMatched:
		return "matched"
	case StateUpgraded:
		return "upgraded"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Target 为升级请求匹配到的端点及握手参数。
type Target struct {
	Endpoint       *endpoint.ConfiguredServerEndpoint
	PathParameters map[string]string
	// InstalledExtensions 为传输层能够结构性支持的扩展。
	InstalledExtensions []negotiation.Extension
}

// Result 为握手成功后的协商结果。
type Result struct {
	Channel     session.Channel
	Subprotocol string
	Extensions  []negotiation.Extension
	Request     *endpoint.HandshakeRequest
}

// Handshake 为某一协议版本的握手实现。
type Handshake interface {
	Name() string

	// Matches 只做结构性检查（版本号、必需头部），不能修改 exchange。
	Matches(ex Exchange) bool

	// Handshake 完成协商并升级；失败时负责结束 exchange。
	Handshake(ex Exchange, target *Target) (*Result, error)
}

// Continuation 在升级成功后构造会话并完成 OnOpen 派发。
type Continuation func(res *Result) error

// Set 为有序的握手策略集合，按注册顺序取第一个匹配的策略。
type Set struct {
	mu         sync.RWMutex
	strategies []Handshake
}

// NewSet 创建策略集合，未提供策略时使用 RFC6455。
func NewSet(strategies ...Handshake) *Set {
	if len(strategies) == 0 {
		strategies = []Handshake{RFC6455{}}
	}
	return &Set{strategies: strategies}
}

// Add 追加策略，排在已有策略之后。
func (s *Set) Add(h Handshake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies = append(s.strategies, h)
}

// Select 返回第一个匹配的策略。后注册的策略即使更合适也不会被选中。
func (s *Set) Select(ex Exchange) (Handshake, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(s.strategies, func(h Handshake) bool {
		return h.Matches(ex)
	})
}

func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(s.strategies, func(h Handshake, _ int) string { return h.Name() })
}

// Perform 驱动 Offered -> Matched -> Upgraded / Rejected。
//
// 没有策略匹配时返回 StateRejected 与 nil 错误，由调用方决定 HTTP 状态码。
func (s *Set) Perform(ex Exchange, target *Target, cont Continuation) (State, error) {
	h, ok := s.Select(ex)
	if !ok {
		metrics.ContainerHandshakes.WithLabelValues(metrics.NotMatchedLabel).Inc()
		return StateRejected, nil
	}
	logger := log.Ctx(ex.Context()).With(zap.String("strategy", h.Name()), log.FieldEndpoint(target.Endpoint.Identity()))

	res, err := h.Handshake(ex, target)
	if err != nil {
		metrics.ContainerHandshakes.WithLabelValues(metrics.RejectedLabel).Inc()
		logger.Info("handshake rejected", zap.Error(err))
		return StateRejected, err
	}
	metrics.ContainerHandshakes.WithLabelValues(metrics.SuccessLabel).Inc()
	logger.Debug("handshake upgraded",
		zap.String("subprotocol", res.Subprotocol),
		zap.Strings("extensions", negotiation.ExtensionNames(res.Extensions)))
	if err := cont(res); err != nil {
		return StateUpgraded, err
	}
	return StateUpgraded, nil
}

// RFC6455Version 为 RFC 6455 定义的 Sec-WebSocket-Version。
const RFC6455Version = "13"

// RFC6455 为 RFC 6455（版本 13）握手策略。
type RFC6455 struct{}

var _ Handshake = RFC6455{}

func (RFC6455) Name() string {
	return "rfc6455"
}

func (RFC6455) Matches(ex Exchange) bool {
	h := ex.RequestHeaders()
	return headerHasToken(h, "Upgrade", "websocket") &&
		headerHasToken(h, "Connection", "upgrade") &&
		strings.TrimSpace(h.Get(negotiation.HeaderSecWebSocketVersion)) == RFC6455Version &&
		h.Get(negotiation.HeaderSecWebSocketKey) != ""
}

func (RFC6455) Handshake(ex Exchange, target *Target) (*Result, error) {
	ep := target.Endpoint
	cfg := ep.Config()
	conf := ep.Configurator()
	req := ex.RequestHeaders()

	if origin := req.Get(negotiation.HeaderOrigin); origin != "" && !conf.CheckOrigin(origin) {
		ex.EndExchange(http.StatusForbidden, "origin not allowed")
		return nil, merr.WrapErrOriginNotAllowed(origin)
	}

	requested := negotiation.ParseSubprotocols(req.Values(negotiation.HeaderSecWebSocketProtocol)...)
	subprotocol := conf.NegotiatedSubprotocol(cfg.Subprotocols, requested)

	// 传输层只对端点声明过的已安装扩展进行结构性协商
	declared := negotiation.ExtensionNames(cfg.Extensions)
	available := lo.Filter(target.InstalledExtensions, func(e negotiation.Extension, _ int) bool {
		return lo.ContainsBy(declared, func(name string) bool { return strings.EqualFold(name, e.Name) })
	})
	requestedExts := negotiation.ParseExtensions(req.Values(negotiation.HeaderSecWebSocketExtensions)...)
	selected := conf.NegotiatedExtensions(available, requestedExts)
	exts, err := negotiation.NegotiateExtensions(selected, cfg.Extensions)
	if err != nil {
		ex.EndExchange(http.StatusInternalServerError, "extension negotiation failed")
		return nil, err
	}

	resp := ex.ResponseHeaders()
	if subprotocol != "" {
		resp.Set(negotiation.HeaderSecWebSocketProtocol, subprotocol)
	}
	compression := false
	others := make([]negotiation.Extension, 0, len(exts))
	for i, e := range exts {
		if strings.EqualFold(e.Name, negotiation.PerMessageDeflate) {
			// 应答头由 Upgrader 写出，会话记录其实际参数
			compression = true
			exts[i] = negotiation.DeflateResponse()
			continue
		}
		others = append(others, e)
	}
	if len(others) > 0 {
		resp.Set(negotiation.HeaderSecWebSocketExtensions, negotiation.FormatExtensions(others))
	}

	hreq := &endpoint.HandshakeRequest{
		Headers:        req,
		RequestURI:     ex.RequestURI(),
		PathParameters: target.PathParameters,
	}
	conf.ModifyHandshake(cfg, hreq, resp)

	ch, err := ex.Upgrade(UpgradeOptions{Compression: compression})
	if err != nil {
		return nil, err
	}
	return &Result{
		Channel:     ch,
		Subprotocol: subprotocol,
		Extensions:  exts,
		Request:     hreq,
	}, nil
}

func headerHasToken(h *negotiation.Headers, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
