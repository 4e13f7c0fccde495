package negotiation

import (
	"net/http"
	"strings"
)

// ClientConfigurator 为客户端握手钩子。
//
// BeforeRequest 可以改写即将发出的请求头；AfterResponse 在会话可用之前查看握手响应头。
type ClientConfigurator interface {
	BeforeRequest(headers *Headers)
	AfterResponse(headers *Headers)
}

// NopClientConfigurator 不做任何修改。
type NopClientConfigurator struct{}

func (NopClientConfigurator) BeforeRequest(*Headers) {}

func (NopClientConfigurator) AfterResponse(*Headers) {}

var _ ClientConfigurator = NopClientConfigurator{}

// ClientNegotiation 承载一次客户端连接的协商参数与结果。
//
// 不可在多个连接间复用。
type ClientNegotiation struct {
	supportedSubprotocols []string
	supportedExtensions   []Extension
	configurator          ClientConfigurator

	selectedSubprotocol string
	selectedExtensions  []Extension
}

func NewClientNegotiation(subprotocols []string, extensions []Extension, configurator ClientConfigurator) *ClientNegotiation {
	if configurator == nil {
		configurator = NopClientConfigurator{}
	}
	return &ClientNegotiation{
		supportedSubprotocols: append([]string(nil), subprotocols...),
		supportedExtensions:   append([]Extension(nil), extensions...),
		configurator:          configurator,
	}
}

func (n *ClientNegotiation) SupportedSubprotocols() []string {
	return n.supportedSubprotocols
}

func (n *ClientNegotiation) SupportedExtensions() []Extension {
	return n.supportedExtensions
}

// BeforeRequest 组装握手请求头并交给钩子改写，返回最终应发出的头部。
// 钩子清空值的键不会被发出。
func (n *ClientNegotiation) BeforeRequest(base http.Header) http.Header {
	headers := HeadersFromHTTP(base)
	if len(n.supportedSubprotocols) > 0 && !headers.Has(HeaderSecWebSocketProtocol) {
		headers.Set(HeaderSecWebSocketProtocol, strings.Join(n.supportedSubprotocols, ", "))
	}
	if len(n.supportedExtensions) > 0 && !headers.Has(HeaderSecWebSocketExtensions) {
		headers.Set(HeaderSecWebSocketExtensions, FormatExtensions(n.supportedExtensions))
	}
	n.configurator.BeforeRequest(headers)
	return headers.Emit()
}

// AfterRequest 在握手响应到达后调用：先让钩子查看完整响应头，
// 再从 resp 中移除 Sec-WebSocket-Protocol，并校验服务端选中的扩展。
func (n *ClientNegotiation) AfterRequest(resp http.Header) error {
	n.configurator.AfterResponse(HeadersFromHTTP(resp))

	n.selectedSubprotocol = strings.TrimSpace(resp.Get(HeaderSecWebSocketProtocol))
	resp.Del(HeaderSecWebSocketProtocol)

	selected := ParseExtensions(resp.Values(HeaderSecWebSocketExtensions)...)
	exts, err := VerifyClientExtensions(selected, n.supportedExtensions)
	if err != nil {
		return err
	}
	n.selectedExtensions = exts
	return nil
}

func (n *ClientNegotiation) SelectedSubprotocol() string {
	return n.selectedSubprotocol
}

func (n *ClientNegotiation) SelectedExtensions() []Extension {
	return n.selectedExtensions
}
