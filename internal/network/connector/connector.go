package connector

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// Request 描述一次客户端连接。
type Request struct {
	URL *url.URL
	// TLSConfig 仅在 wss 时使用。
	TLSConfig *tls.Config
	// BindAddress 为本地绑定地址，空表示由系统选择。
	BindAddress string
	// Header 为额外的握手请求头。
	Header http.Header
	// Negotiation 不能为空。
	Negotiation *negotiation.ClientNegotiation
}

// Result 为握手完成后的原始通道与协商结果。
type Result struct {
	Channel     session.Channel
	Subprotocol string
	Extensions  []negotiation.Extension
	Response    http.Header
}

// Transport 抽象了客户端的连接建立过程。
//
// 实现必须在 ctx 取消后尽快返回，并释放已建立的连接。
type Transport interface {
	Connect(ctx context.Context, req *Request) (*Result, error)
}

// TransportFunc 将函数适配为 Transport。
type TransportFunc func(ctx context.Context, req *Request) (*Result, error)

func (f TransportFunc) Connect(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// wsTransport 是基于 gorilla/websocket Dialer 的默认 Transport。
type wsTransport struct {
	bufSize int
}

var _ Transport = (*wsTransport)(nil)

// NewWSTransport 创建默认 Transport，bufSize <= 0 时使用 gorilla 默认缓冲区。
func NewWSTransport(bufSize int) Transport {
	return &wsTransport{bufSize: bufSize}
}

func (t *wsTransport) Connect(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.URL == nil {
		return nil, merr.WrapErrParameterMissing("url")
	}
	if req.Negotiation == nil {
		req.Negotiation = negotiation.NewClientNegotiation(nil, nil, nil)
	}
	target := req.URL.String()

	header := req.Negotiation.BeforeRequest(req.Header)
	// gorilla 不允许调用方写 Sec-WebSocket-Extensions，压缩改由 EnableCompression 协商
	requestedExts := negotiation.ParseExtensions(header.Values(negotiation.HeaderSecWebSocketExtensions)...)
	header.Del(negotiation.HeaderSecWebSocketExtensions)
	compression := lo.ContainsBy(requestedExts, func(e negotiation.Extension) bool {
		return strings.EqualFold(e.Name, negotiation.PerMessageDeflate)
	})
	if dropped := len(requestedExts) - lo.Ternary(compression, 1, 0); dropped > 0 {
		log.Ctx(ctx).Debug("transport cannot offer extensions, dropped",
			zap.String("url", target),
			zap.Strings("requested", negotiation.ExtensionNames(requestedExts)))
	}

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		ReadBufferSize:    t.bufSize,
		WriteBufferSize:   t.bufSize,
		EnableCompression: compression,
	}
	if IsSecure(req.URL) {
		dialer.TLSClientConfig = req.TLSConfig
	}
	if req.BindAddress != "" {
		netDialer, err := bindDialer(req.BindAddress)
		if err != nil {
			return nil, err
		}
		dialer.NetDialContext = netDialer.DialContext
	}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.HandshakeTimeout = time.Until(deadline)
	}

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, merr.Combine(merr.WrapErrIoFailed(target, err), merr.WrapErrHandshakeRejected(resp.Status))
		}
		return nil, merr.WrapErrIoFailed(target, err)
	}
	if err := req.Negotiation.AfterRequest(resp.Header); err != nil {
		_ = conn.Close()
		return nil, err
	}
	// 以连接实际生效的子协议为准
	subprotocol := conn.Subprotocol()
	if subprotocol == "" {
		subprotocol = req.Negotiation.SelectedSubprotocol()
	}
	return &Result{
		Channel:     session.NewWSChannel(conn),
		Subprotocol: subprotocol,
		Extensions:  req.Negotiation.SelectedExtensions(),
		Response:    resp.Header,
	}, nil
}

func bindDialer(addr string) (*net.Dialer, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "0")
	}
	local, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("invalid bind address %s: %v", addr, err)
	}
	return &net.Dialer{LocalAddr: local}, nil
}

// IsSecure 判断目标地址是否需要 TLS。
func IsSecure(u *url.URL) bool {
	return u != nil && (u.Scheme == "wss" || u.Scheme == "https")
}
