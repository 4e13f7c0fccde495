package endpoint

import (
	"strconv"
	"time"

	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/session"
)

// TimeoutProperty 为客户端配置中覆盖连接超时的用户属性键，
// 取值可以是秒数（int/int64/string）或 time.Duration。
const TimeoutProperty = "wsgarden.connect.timeout"

// Factory 创建端点实例，每个会话调用一次。
type Factory interface {
	Create() (session.Endpoint, error)
}

// FactoryFunc 将函数适配为 Factory。
type FactoryFunc func() (session.Endpoint, error)

func (f FactoryFunc) Create() (session.Endpoint, error) {
	return f()
}

// Singleton 返回总是给出同一实例的 Factory。
func Singleton(ep session.Endpoint) Factory {
	return FactoryFunc(func() (session.Endpoint, error) { return ep, nil })
}

// ServerConfig 为服务端端点描述，注册后不可修改。
type ServerConfig struct {
	// Path 为路径模板，例如 /chat/{room}。
	Path string

	// Subprotocols 按优先级排列的子协议。
	Subprotocols []string
	// Extensions 端点声明支持的扩展。
	Extensions []negotiation.Extension

	// Encoders/Decoders 为编解码器名称，见 encoding.Factory。
	Encoders []string
	Decoders []string

	// Configurator 为空时使用 DefaultServerConfigurator。
	Configurator ServerConfigurator
	// Factory 为空时由 Configurator.EndpointInstance 创建实例。
	Factory Factory

	UserProperties map[string]any
}

// ClientConfig 为客户端端点描述。
type ClientConfig struct {
	// PreferredSubprotocols 按优先级排列，作为 Sec-WebSocket-Protocol 发出。
	PreferredSubprotocols []string
	Extensions            []negotiation.Extension

	Encoders []string
	Decoders []string

	// Configurator 为空时不改写握手头部。
	Configurator negotiation.ClientConfigurator

	UserProperties map[string]any
}

// ConnectTimeout 从 UserProperties[TimeoutProperty] 解析连接超时。
func (c *ClientConfig) ConnectTimeout() (time.Duration, bool) {
	if c == nil || c.UserProperties == nil {
		return 0, false
	}
	raw, ok := c.UserProperties[TimeoutProperty]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, v > 0
	case int:
		return time.Duration(v) * time.Second, v > 0
	case int64:
		return time.Duration(v) * time.Second, v > 0
	case string:
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func copyProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
