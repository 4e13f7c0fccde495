package endpoint

import (
	"reflect"

	"github.com/lk2023060901/wsgarden/internal/network/session"
)

// ServerDeclarer 由以类型方式声明服务端端点的类型实现。
type ServerDeclarer interface {
	ServerEndpoint() ServerConfig
}

// ClientDeclarer 由以类型方式声明客户端端点的类型实现。
type ClientDeclarer interface {
	ClientEndpoint() ClientConfig
}

// Wrapper 由包装其他端点的类型实现，用于沿包装链查找声明。
type Wrapper interface {
	Unwrap() any
}

// maxUnwrapDepth 防止包装链成环。
const maxUnwrapDepth = 32

// Identity 返回声明类型的标识。
func Identity(v any) reflect.Type {
	return reflect.TypeOf(v)
}

// IdentityName 返回声明类型的可读名称。
func IdentityName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// FindClientDeclarer 沿 Unwrap 链查找最近的 ClientDeclarer。
func FindClientDeclarer(v any) (ClientDeclarer, bool) {
	for i := 0; v != nil && i < maxUnwrapDepth; i++ {
		if d, ok := v.(ClientDeclarer); ok {
			return d, true
		}
		w, ok := v.(Wrapper)
		if !ok {
			return nil, false
		}
		v = w.Unwrap()
	}
	return nil, false
}

// FindEndpoint 沿 Unwrap 链查找最近的 session.Endpoint 实现。
func FindEndpoint(v any) (session.Endpoint, bool) {
	for i := 0; v != nil && i < maxUnwrapDepth; i++ {
		if ep, ok := v.(session.Endpoint); ok {
			return ep, true
		}
		w, ok := v.(Wrapper)
		if !ok {
			return nil, false
		}
		v = w.Unwrap()
	}
	return nil, false
}
