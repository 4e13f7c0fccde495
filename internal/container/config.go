package container

import (
	"time"

	"github.com/lk2023060901/wsgarden/internal/network/connector"
	"github.com/lk2023060901/wsgarden/internal/network/dispatch"
	"github.com/lk2023060901/wsgarden/internal/network/encoding"
	"github.com/lk2023060901/wsgarden/internal/network/handshake"
	"github.com/lk2023060901/wsgarden/pkg/util/conc"
	zviper "github.com/lk2023060901/wsgarden/pkg/util/viper"
)

// ConfigKey 为配置文件中容器配置所在的键。
const ConfigKey = "container"

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultCloseWaitTime    = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxFrameSize     = 65536
)

// Config 为容器配置，可从 YAML/JSON 文件的 container 键加载。
//
// 例如：
//
//	container:
//	  dispatchToWorker: true
//	  workerPoolSize: 16
//	  connectTimeout: 5s
//	  serverExtensions: [permessage-deflate]
type Config struct {
	// DispatchToWorker 为 true 时回调提交到协程池执行。
	DispatchToWorker bool `mapstructure:"dispatchToWorker"`
	// WorkerPoolSize <= 0 时使用 CPU 核数。
	WorkerPoolSize int `mapstructure:"workerPoolSize"`

	ConnectTimeout   time.Duration `mapstructure:"connectTimeout"`
	CloseWaitTime    time.Duration `mapstructure:"closeWaitTime"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`

	// MaxFrameSize 为传输层读取上限，消息缓冲上限更大时以缓冲上限为准。
	MaxFrameSize int64 `mapstructure:"maxFrameSize"`
	// BufferSize 为读写缓冲区大小，<= 0 使用传输层默认值。
	BufferSize int `mapstructure:"bufferSize"`

	DefaultAsyncSendTimeout           time.Duration `mapstructure:"defaultAsyncSendTimeout"`
	DefaultMaxSessionIdleTimeout      time.Duration `mapstructure:"defaultMaxSessionIdleTimeout"`
	DefaultMaxTextMessageBufferSize   int           `mapstructure:"defaultMaxTextMessageBufferSize"`
	DefaultMaxBinaryMessageBufferSize int           `mapstructure:"defaultMaxBinaryMessageBufferSize"`

	ClientBindAddress string `mapstructure:"clientBindAddress"`
	// ServerExtensions 为传输层已安装的扩展名。
	ServerExtensions []string `mapstructure:"serverExtensions"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   defaultConnectTimeout,
		CloseWaitTime:    defaultCloseWaitTime,
		HandshakeTimeout: defaultHandshakeTimeout,
		MaxFrameSize:     defaultMaxFrameSize,
	}
}

// LoadConfig 从已加载的配置文件中读取 container 键，未配置的字段保持默认值。
func LoadConfig(cfg *zviper.Config) (Config, error) {
	out := DefaultConfig()
	if cfg == nil {
		return out, nil
	}
	if err := cfg.UnmarshalKey(ConfigKey, &out); err != nil {
		return out, err
	}
	out.normalize()
	return out, nil
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.CloseWaitTime <= 0 {
		c.CloseWaitTime = def.CloseWaitTime
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
}

type options struct {
	cfg           Config
	setupHandlers []dispatch.SetupHandler
	poolOptions   []conc.PoolOption
	tlsProviders  []connector.TLSProvider
	transport     connector.Transport
	handshakes    []handshake.Handshake
	codecs        *encoding.Factory
}

// Option 为容器构造选项。
type Option func(opt *options)

// WithConfig 整体替换配置。
func WithConfig(cfg Config) Option {
	return func(opt *options) {
		opt.cfg = cfg
	}
}

func WithDispatchToWorker(enable bool) Option {
	return func(opt *options) {
		opt.cfg.DispatchToWorker = enable
	}
}

func WithWorkerPoolSize(size int) Option {
	return func(opt *options) {
		opt.cfg.WorkerPoolSize = size
	}
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(opt *options) {
		opt.cfg.ConnectTimeout = timeout
	}
}

func WithCloseWaitTime(wait time.Duration) Option {
	return func(opt *options) {
		opt.cfg.CloseWaitTime = wait
	}
}

func WithClientBindAddress(addr string) Option {
	return func(opt *options) {
		opt.cfg.ClientBindAddress = addr
	}
}

// WithServerExtensions 设置传输层已安装的扩展。
func WithServerExtensions(names ...string) Option {
	return func(opt *options) {
		opt.cfg.ServerExtensions = append(opt.cfg.ServerExtensions, names...)
	}
}

// WithSetupHandlers 追加回调环境包装，先追加的位于外层。
func WithSetupHandlers(handlers ...dispatch.SetupHandler) Option {
	return func(opt *options) {
		opt.setupHandlers = append(opt.setupHandlers, handlers...)
	}
}

// WithPoolOptions 透传协程池选项。
func WithPoolOptions(opts ...conc.PoolOption) Option {
	return func(opt *options) {
		opt.poolOptions = append(opt.poolOptions, opts...)
	}
}

// WithTLSProviders 追加 TLS 配置提供者，按追加顺序询问。
func WithTLSProviders(providers ...connector.TLSProvider) Option {
	return func(opt *options) {
		opt.tlsProviders = append(opt.tlsProviders, providers...)
	}
}

// WithTransport 替换客户端传输层。
func WithTransport(t connector.Transport) Option {
	return func(opt *options) {
		opt.transport = t
	}
}

// WithHandshakes 设置握手策略，按给定顺序匹配。
func WithHandshakes(strategies ...handshake.Handshake) Option {
	return func(opt *options) {
		opt.handshakes = append(opt.handshakes, strategies...)
	}
}

// WithEncodingFactory 替换编解码器集合。
func WithEncodingFactory(f *encoding.Factory) Option {
	return func(opt *options) {
		opt.codecs = f
	}
}
