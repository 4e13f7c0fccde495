package endpoint

import (
	"net/url"

	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// HandshakeRequest 为服务端握手钩子看到的请求视图。
type HandshakeRequest struct {
	Headers        *negotiation.Headers
	RequestURI     *url.URL
	PathParameters map[string]string
}

// QueryString 返回原始查询串。
func (r *HandshakeRequest) QueryString() string {
	if r.RequestURI == nil {
		return ""
	}
	return r.RequestURI.RawQuery
}

// ServerConfigurator 为服务端握手钩子。
type ServerConfigurator interface {
	// NegotiatedSubprotocol 从客户端请求中选出子协议，返回空串表示不选。
	NegotiatedSubprotocol(supported, requested []string) string

	// NegotiatedExtensions 从客户端请求中选出扩展。
	NegotiatedExtensions(installed, requested []negotiation.Extension) []negotiation.Extension

	// CheckOrigin 返回 false 时握手以 403 拒绝。
	CheckOrigin(origin string) bool

	// ModifyHandshake 在响应头写出之前调用，可改写 resp。
	ModifyHandshake(cfg *ServerConfig, req *HandshakeRequest, resp *negotiation.Headers)

	// EndpointInstance 在端点未提供 Factory 时用于创建实例。
	EndpointInstance() (session.Endpoint, error)
}

// DefaultServerConfigurator 为默认的服务端钩子实现，可嵌入后按需覆写。
type DefaultServerConfigurator struct{}

var _ ServerConfigurator = DefaultServerConfigurator{}

func (DefaultServerConfigurator) NegotiatedSubprotocol(supported, requested []string) string {
	return negotiation.SelectSubprotocol(supported, requested)
}

func (DefaultServerConfigurator) NegotiatedExtensions(installed, requested []negotiation.Extension) []negotiation.Extension {
	return negotiation.DefaultNegotiatedExtensions(installed, requested)
}

func (DefaultServerConfigurator) CheckOrigin(string) bool {
	return true
}

func (DefaultServerConfigurator) ModifyHandshake(*ServerConfig, *HandshakeRequest, *negotiation.Headers) {}

func (DefaultServerConfigurator) EndpointInstance() (session.Endpoint, error) {
	return nil, merr.WrapErrOperationNotSupported("EndpointInstance")
}
