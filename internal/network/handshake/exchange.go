package handshake

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// UpgradeOptions 为传输层在升级时需要结构性处理的参数。
type UpgradeOptions struct {
	// Compression 为 true 时由传输层协商 permessage-deflate。
	Compression bool
}

// Exchange 为一次升级请求的请求/响应视图。
type Exchange interface {
	Context() context.Context

	// RequestHeaders 返回请求头（大小写不敏感，多值）。
	RequestHeaders() *negotiation.Headers
	RequestURI() *url.URL
	// Scheme 返回 ws 或 wss。
	Scheme() string

	// ResponseHeaders 返回待写出的响应头，可在 Upgrade 之前修改。
	ResponseHeaders() *negotiation.Headers

	PutAttachment(key, value any)
	Attachment(key any) (any, bool)

	// Upgrade 写出 101 响应并返回原始通道。
	Upgrade(opts UpgradeOptions) (session.Channel, error)

	// EndExchange 以给定状态码结束请求，不进行升级。
	EndExchange(status int, reason string)
}

type attachments struct {
	mu     sync.Mutex
	values map[any]any
}

func (a *attachments) PutAttachment(key, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.values == nil {
		a.values = make(map[any]any)
	}
	a.values[key] = value
}

func (a *attachments) Attachment(key any) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[key]
	return v, ok
}

// HTTPExchange 基于 net/http 与 gorilla/websocket 的 Exchange 实现。
type HTTPExchange struct {
	attachments

	w       http.ResponseWriter
	r       *http.Request
	req     *negotiation.Headers
	resp    *negotiation.Headers
	timeout time.Duration
	bufSize int
	ended   bool
}

var _ Exchange = (*HTTPExchange)(nil)

// NewHTTPExchange 包装一次 HTTP 请求；bufSize <= 0 时使用 gorilla 默认缓冲区大小。
func NewHTTPExchange(w http.ResponseWriter, r *http.Request, handshakeTimeout time.Duration, bufSize int) *HTTPExchange {
	return &HTTPExchange{
		w:       w,
		r:       r,
		req:     negotiation.HeadersFromHTTP(r.Header),
		resp:    negotiation.NewHeaders(),
		timeout: handshakeTimeout,
		bufSize: bufSize,
	}
}

func (e *HTTPExchange) Context() context.Context {
	return e.r.Context()
}

func (e *HTTPExchange) RequestHeaders() *negotiation.Headers {
	return e.req
}

func (e *HTTPExchange) RequestURI() *url.URL {
	return e.r.URL
}

func (e *HTTPExchange) Scheme() string {
	if e.r.TLS != nil {
		return "wss"
	}
	return "ws"
}

func (e *HTTPExchange) ResponseHeaders() *negotiation.Headers {
	return e.resp
}

func (e *HTTPExchange) Upgrade(opts UpgradeOptions) (session.Channel, error) {
	if e.ended {
		return nil, merr.WrapErrHandshakeRejected("exchange already ended")
	}
	e.ended = true
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  e.timeout,
		ReadBufferSize:    e.bufSize,
		WriteBufferSize:   e.bufSize,
		EnableCompression: opts.Compression,
		// Origin 已由握手策略校验
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(e.w, e.r, e.resp.Emit())
	if err != nil {
		return nil, merr.WrapErrHandshakeRejected(err.Error())
	}
	return session.NewWSChannel(conn), nil
}

func (e *HTTPExchange) EndExchange(status int, reason string) {
	if e.ended {
		return
	}
	e.ended = true
	for k, vs := range e.resp.Emit() {
		for _, v := range vs {
			e.w.Header().Add(k, v)
		}
	}
	http.Error(e.w, reason, status)
}

// MemoryExchange 为进程内的 Exchange 实现，Upgrade 返回 Pipe 的一端，
// 另一端通过 Peer 取得。
type MemoryExchange struct {
	attachments

	ctx    context.Context
	uri    *url.URL
	scheme string
	req    *negotiation.Headers
	resp   *negotiation.Headers

	mu       sync.Mutex
	peer     session.Channel
	upgraded bool
	status   int
	reason   string
	opts     UpgradeOptions
}

var _ Exchange = (*MemoryExchange)(nil)

// NewMemoryExchange 创建进程内 Exchange，headers 为空时使用标准的 RFC 6455 升级请求头。
func NewMemoryExchange(ctx context.Context, uri *url.URL, headers *negotiation.Headers) *MemoryExchange {
	if ctx == nil {
		ctx = context.Background()
	}
	if headers == nil {
		headers = StandardRequestHeaders()
	}
	scheme := "ws"
	if uri != nil && (uri.Scheme == "wss" || uri.Scheme == "https") {
		scheme = "wss"
	}
	return &MemoryExchange{
		ctx:    ctx,
		uri:    uri,
		scheme: scheme,
		req:    headers,
		resp:   negotiation.NewHeaders(),
	}
}

// StandardRequestHeaders 返回一组合法的 RFC 6455 升级请求头。
func StandardRequestHeaders() *negotiation.Headers {
	h := negotiation.NewHeaders()
	h.Set("Upgrade", "websocket")
	h.Set("Connection", "Upgrade")
	h.Set(negotiation.HeaderSecWebSocketVersion, RFC6455Version)
	h.Set(negotiation.HeaderSecWebSocketKey, "dGhlIHNhbXBsZSBub25jZQ==")
	return h
}

func (e *MemoryExchange) Context() context.Context {
	return e.ctx
}

func (e *MemoryExchange) RequestHeaders() *negotiation.Headers {
	return e.req
}

func (e *MemoryExchange) RequestURI() *url.URL {
	return e.uri
}

func (e *MemoryExchange) Scheme() string {
	return e.scheme
}

func (e *MemoryExchange) ResponseHeaders() *negotiation.Headers {
	return e.resp
}

func (e *MemoryExchange) Upgrade(opts UpgradeOptions) (session.Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.upgraded || e.status != 0 {
		return nil, merr.WrapErrHandshakeRejected("exchange already ended")
	}
	local, remote := session.Pipe()
	e.upgraded = true
	e.status = http.StatusSwitchingProtocols
	e.peer = remote
	e.opts = opts
	return local, nil
}

func (e *MemoryExchange) EndExchange(status int, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.upgraded || e.status != 0 {
		return
	}
	e.status = status
	e.reason = reason
}

// Peer 返回升级后对端的通道，未升级时为 nil。
func (e *MemoryExchange) Peer() session.Channel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

// Status 返回结束请求时的状态码与原因。
func (e *MemoryExchange) Status() (int, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.reason
}

// Options 返回升级时使用的参数。
func (e *MemoryExchange) Options() UpgradeOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}
