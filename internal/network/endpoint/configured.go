package endpoint

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/encoding"
	"github.com/lk2023060901/wsgarden/internal/network/pathtemplate"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/metrics"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
)

// ConfiguredServerEndpoint 为已注册的服务端端点：描述、编解码适配器以及当前打开的会话。
type ConfiguredServerEndpoint struct {
	config   ServerConfig
	template *pathtemplate.Template
	encoding *encoding.Encoding
	factory  Factory
	sessions *session.Manager
}

var _ session.Owner = (*ConfiguredServerEndpoint)(nil)

// NewConfiguredServerEndpoint 校验描述并构造端点。
//
// 描述未提供 Factory 时，要求 Configurator 能创建实例，否则返回 ErrEndpointInstantiation。
func NewConfiguredServerEndpoint(cfg ServerConfig, codecs *encoding.Factory) (*ConfiguredServerEndpoint, error) {
	tmpl, err := pathtemplate.Parse(cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Configurator == nil {
		cfg.Configurator = DefaultServerConfigurator{}
	}

	factory := cfg.Factory
	if factory == nil {
		// 先试探一次，确认自定义 Configurator 能提供实例
		if _, err := cfg.Configurator.EndpointInstance(); err != nil {
			return nil, merr.WrapErrEndpointInstantiation(tmpl.String(), err)
		}
		factory = FactoryFunc(cfg.Configurator.EndpointInstance)
	}

	enc, err := codecs.Create(cfg.Encoders, cfg.Decoders)
	if err != nil {
		return nil, errors.Wrapf(err, "endpoint %s", tmpl.String())
	}

	cfg.Subprotocols = append([]string(nil), cfg.Subprotocols...)
	cfg.Extensions = append(cfg.Extensions[:0:0], cfg.Extensions...)
	cfg.UserProperties = copyProperties(cfg.UserProperties)

	return &ConfiguredServerEndpoint{
		config:   cfg,
		template: tmpl,
		encoding: enc,
		factory:  factory,
		sessions: session.NewManager(),
	}, nil
}

func (e *ConfiguredServerEndpoint) Identity() string {
	return e.template.String()
}

func (e *ConfiguredServerEndpoint) Config() *ServerConfig {
	return &e.config
}

func (e *ConfiguredServerEndpoint) Template() *pathtemplate.Template {
	return e.template
}

func (e *ConfiguredServerEndpoint) Encoding() *encoding.Encoding {
	return e.encoding
}

func (e *ConfiguredServerEndpoint) Configurator() ServerConfigurator {
	return e.config.Configurator
}

func (e *ConfiguredServerEndpoint) Sessions() *session.Manager {
	return e.sessions
}

// NewInstance 为一个新会话创建端点实例。
func (e *ConfiguredServerEndpoint) NewInstance() (session.Endpoint, error) {
	ep, err := e.factory.Create()
	if err != nil {
		return nil, merr.WrapErrEndpointInstantiation(e.Identity(), err)
	}
	if ep == nil {
		return nil, merr.WrapErrEndpointInstantiation(e.Identity(), errors.New("factory returned nil endpoint"))
	}
	return ep, nil
}

// Attach 将会话加入打开会话集合。
func (e *ConfiguredServerEndpoint) Attach(s *session.Session) error {
	return attach(e.sessions, network.ServerSide, s)
}

// Detach 实现 session.Owner，在会话关闭完成后移出集合。
func (e *ConfiguredServerEndpoint) Detach(s *session.Session) {
	detach(e.sessions, network.ServerSide, s)
}

// ConfiguredClientEndpoint 为已解析的客户端端点描述。
type ConfiguredClientEndpoint struct {
	identity string
	config   ClientConfig
	encoding *encoding.Encoding
	sessions *session.Manager
}

var _ session.Owner = (*ConfiguredClientEndpoint)(nil)

// NewConfiguredClientEndpoint 构造客户端端点，identity 用于日志与监控。
func NewConfiguredClientEndpoint(identity string, cfg ClientConfig, codecs *encoding.Factory) (*ConfiguredClientEndpoint, error) {
	enc, err := codecs.Create(cfg.Encoders, cfg.Decoders)
	if err != nil {
		return nil, errors.Wrapf(err, "client endpoint %s", identity)
	}
	cfg.PreferredSubprotocols = append([]string(nil), cfg.PreferredSubprotocols...)
	cfg.Extensions = append(cfg.Extensions[:0:0], cfg.Extensions...)
	cfg.UserProperties = copyProperties(cfg.UserProperties)
	return &ConfiguredClientEndpoint{
		identity: identity,
		config:   cfg,
		encoding: enc,
		sessions: session.NewManager(),
	}, nil
}

func (e *ConfiguredClientEndpoint) Identity() string {
	return e.identity
}

func (e *ConfiguredClientEndpoint) Config() *ClientConfig {
	return &e.config
}

func (e *ConfiguredClientEndpoint) Encoding() *encoding.Encoding {
	return e.encoding
}

func (e *ConfiguredClientEndpoint) Sessions() *session.Manager {
	return e.sessions
}

func (e *ConfiguredClientEndpoint) Attach(s *session.Session) error {
	return attach(e.sessions, network.ClientSide, s)
}

func (e *ConfiguredClientEndpoint) Detach(s *session.Session) {
	detach(e.sessions, network.ClientSide, s)
}

func attach(m *session.Manager, side network.Side, s *session.Session) error {
	if err := m.Register(s); err != nil {
		return err
	}
	metrics.ContainerOpenSessions.WithLabelValues(string(side)).Inc()
	return nil
}

func detach(m *session.Manager, side network.Side, s *session.Session) {
	if m.Unregister(s.ID()) {
		metrics.ContainerOpenSessions.WithLabelValues(string(side)).Dec()
	}
}
