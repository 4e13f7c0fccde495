package container

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/connector"
	"github.com/lk2023060901/wsgarden/internal/network/dispatch"
	"github.com/lk2023060901/wsgarden/internal/network/encoding"
	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/handshake"
	"github.com/lk2023060901/wsgarden/internal/network/negotiation"
	"github.com/lk2023060901/wsgarden/internal/network/registry"
	"github.com/lk2023060901/wsgarden/internal/network/session"
	"github.com/lk2023060901/wsgarden/pkg/log"
	"github.com/lk2023060901/wsgarden/pkg/util/merr"
	"github.com/lk2023060901/wsgarden/pkg/util/typeutil"
)

// attacher 为可以接收会话的已配置端点。
type attacher interface {
	session.Owner
	Attach(s *session.Session) error
	Sessions() *session.Manager
}

var (
	_ attacher = (*endpoint.ConfiguredServerEndpoint)(nil)
	_ attacher = (*endpoint.ConfiguredClientEndpoint)(nil)
)

// Container 为 WebSocket 容器：端点注册、服务端升级、客户端连接以及暂停/恢复/关闭。
type Container struct {
	log.Binder

	cfg          Config
	registry     *registry.Registry
	dispatcher   *dispatch.Dispatcher
	handshakes   *handshake.Set
	transport    connector.Transport
	tlsProviders []connector.TLSProvider
	installed    []negotiation.Extension

	asyncSendTimeout atomic.Duration
	maxIdleTimeout   atomic.Duration
	maxTextSize      atomic.Int64
	maxBinarySize    atomic.Int64

	// 通过 ConnectWithConfig 建立、未进入注册表的客户端端点
	adhoc *typeutil.ConcurrentSet[*endpoint.ConfiguredClientEndpoint]

	ctx    context.Context
	cancel context.CancelFunc

	// mu 保护 closed、监听队列与排空状态
	mu             sync.Mutex
	closed         bool
	terminated     bool
	listeners      []PauseListener
	drainGen       uint64
	drainRemaining int
	drainStart     time.Time
}

// New 创建容器。
func New(opts ...Option) *Container {
	opt := &options{cfg: DefaultConfig()}
	for _, o := range opts {
		o(opt)
	}
	opt.cfg.normalize()

	if opt.transport == nil {
		opt.transport = connector.NewWSTransport(opt.cfg.BufferSize)
	}
	if opt.codecs == nil {
		opt.codecs = encoding.NewFactory()
	}

	mode := dispatch.ModeDirect
	if opt.cfg.DispatchToWorker {
		mode = dispatch.ModePool
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Container{
		cfg:      opt.cfg,
		registry: registry.New(opt.codecs),
		dispatcher: dispatch.New(
			dispatch.WithMode(mode),
			dispatch.WithPoolSize(opt.cfg.WorkerPoolSize),
			dispatch.WithSetupHandlers(opt.setupHandlers...),
			dispatch.WithPoolOptions(opt.poolOptions...),
		),
		handshakes:   handshake.NewSet(opt.handshakes...),
		transport:    opt.transport,
		tlsProviders: opt.tlsProviders,
		installed:    negotiation.ParseExtensions(opt.cfg.ServerExtensions...),
		adhoc:        typeutil.NewConcurrentSet[*endpoint.ConfiguredClientEndpoint](),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.asyncSendTimeout.Store(opt.cfg.DefaultAsyncSendTimeout)
	c.maxIdleTimeout.Store(opt.cfg.DefaultMaxSessionIdleTimeout)
	c.maxTextSize.Store(int64(opt.cfg.DefaultMaxTextMessageBufferSize))
	c.maxBinarySize.Store(int64(opt.cfg.DefaultMaxBinaryMessageBufferSize))

	c.SetLogger(log.With(log.FieldComponent("container")))

	c.Logger().Info("websocket container created",
		zap.String("dispatch", string(mode)),
		zap.Duration("connectTimeout", opt.cfg.ConnectTimeout),
		zap.Int64("maxFrameSize", opt.cfg.MaxFrameSize),
		zap.Strings("handshakes", c.handshakes.Names()),
		zap.Strings("installedExtensions", negotiation.ExtensionNames(c.installed)))
	return c
}

// SetLogger 替换容器 logger，注册表与派发器使用其子 logger。
func (c *Container) SetLogger(logger *log.MLogger) {
	c.Binder.SetLogger(logger)
	c.registry.SetLogger(logger.With(log.FieldModule("registry")))
	c.dispatcher.SetLogger(logger.With(log.FieldModule("dispatch")))
}

// AddEndpoint 注册一个声明式端点，部署完成后返回 ErrDeploymentSealed。
func (c *Container) AddEndpoint(declared any) error {
	return c.registry.AddEndpoint(declared)
}

// Scan 批量注册声明式端点，错误累积到 DeploymentComplete 时统一返回。
func (c *Container) Scan(declared ...any) error {
	return c.registry.Scan(declared...)
}

// AddServerEndpoint 以显式描述注册服务端端点。
func (c *Container) AddServerEndpoint(cfg endpoint.ServerConfig) error {
	_, err := c.registry.AddServerEndpoint(cfg)
	return err
}

// DeploymentComplete 封存注册表；存在累积的部署错误时返回汇总错误。
func (c *Container) DeploymentComplete() error {
	return c.registry.Finalize()
}

func (c *Container) Registry() *registry.Registry {
	return c.registry
}

// IsClosed 在暂停或关闭后返回 true。
func (c *Container) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Container) IsDispatchToWorker() bool {
	return c.dispatcher.Mode() == dispatch.ModePool
}

// InstalledExtensions 返回传输层已安装的扩展。
func (c *Container) InstalledExtensions() []negotiation.Extension {
	return append([]negotiation.Extension(nil), c.installed...)
}

func (c *Container) ClientBindAddress() string {
	return c.cfg.ClientBindAddress
}

func (c *Container) DefaultAsyncSendTimeout() time.Duration {
	return c.asyncSendTimeout.Load()
}

func (c *Container) SetDefaultAsyncSendTimeout(timeout time.Duration) {
	c.asyncSendTimeout.Store(timeout)
}

func (c *Container) DefaultMaxSessionIdleTimeout() time.Duration {
	return c.maxIdleTimeout.Load()
}

func (c *Container) SetDefaultMaxSessionIdleTimeout(timeout time.Duration) {
	c.maxIdleTimeout.Store(timeout)
}

func (c *Container) DefaultMaxTextMessageBufferSize() int {
	return int(c.maxTextSize.Load())
}

func (c *Container) SetDefaultMaxTextMessageBufferSize(size int) {
	c.maxTextSize.Store(int64(size))
}

func (c *Container) DefaultMaxBinaryMessageBufferSize() int {
	return int(c.maxBinarySize.Load())
}

func (c *Container) SetDefaultMaxBinaryMessageBufferSize(size int) {
	c.maxBinarySize.Store(int64(size))
}

// OpenSessions 返回所有端点上当前打开的会话。
func (c *Container) OpenSessions() []*session.Session {
	var out []*session.Session
	for _, ep := range c.endpoints() {
		out = append(out, ep.Sessions().Snapshot()...)
	}
	return out
}

// endpoints 返回所有可能持有会话的端点。
func (c *Container) endpoints() []attacher {
	var out []attacher
	for _, ep := range c.registry.ServerEndpoints() {
		out = append(out, ep)
	}
	for _, ep := range c.registry.ClientEndpoints() {
		out = append(out, ep)
	}
	for _, ep := range c.adhoc.Collect() {
		out = append(out, ep)
	}
	return out
}

type sessionSpec struct {
	side        network.Side
	channel     session.Channel
	instance    session.Endpoint
	owner       attacher
	encoding    *encoding.Encoding
	subprotocol string
	extensions  []negotiation.Extension
	uri         *url.URL
	pathParams  map[string]string
	props       map[string]any
}

// openSession 创建会话、加入端点集合并同步执行 OnOpen。
//
// 容器已暂停时会话不会被加入，直接以 1001 关闭。
func (c *Container) openSession(spec sessionSpec) (*session.Session, error) {
	sess, err := session.New(session.Params{
		Side:                       spec.side,
		Channel:                    spec.channel,
		Endpoint:                   spec.instance,
		Executor:                   c.dispatcher,
		Owner:                      spec.owner,
		Encoding:                   spec.encoding,
		Subprotocol:                spec.subprotocol,
		Extensions:                 spec.extensions,
		RequestURI:                 spec.uri,
		PathParameters:             spec.pathParams,
		UserProperties:             spec.props,
		MaxIdleTimeout:             c.DefaultMaxSessionIdleTimeout(),
		AsyncSendTimeout:           c.DefaultAsyncSendTimeout(),
		MaxTextMessageBufferSize:   c.DefaultMaxTextMessageBufferSize(),
		MaxBinaryMessageBufferSize: c.DefaultMaxBinaryMessageBufferSize(),
		MaxFrameSize:               c.cfg.MaxFrameSize,
		Context:                    c.ctx,
	})
	if err != nil {
		_ = spec.channel.Close()
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sess.Close(session.NewCloseReason(session.CloseGoingAway, "container closed"))
		return nil, merr.WrapErrContainerClosed()
	}
	err = spec.owner.Attach(sess)
	c.mu.Unlock()
	if err != nil {
		_ = sess.Close(session.NewCloseReason(session.CloseUnexpectedCondition, ""))
		return nil, err
	}

	if err := sess.Open(); err != nil {
		return nil, err
	}
	return sess, nil
}
