package application

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/lk2023060901/wsgarden/internal/container"
	zlog "github.com/lk2023060901/wsgarden/pkg/log"
	zviper "github.com/lk2023060901/wsgarden/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	envConfigPath     = "WSGARDEN_CONFIG_FILE_PATH"
)

// Application 负责加载配置、初始化日志并构造 WebSocket 容器。
type Application struct {
	configPath string
	options    []container.Option

	cfg       *zviper.Config
	loggers   map[string]*zlog.MLogger
	container *container.Container
}

// Option 为 Application 构造选项。
type Option func(a *Application)

// WithConfigPath 指定配置文件路径，优先级高于环境变量。
func WithConfigPath(path string) Option {
	return func(a *Application) {
		a.configPath = path
	}
}

// WithContainerOptions 追加容器选项，在配置文件之后生效。
func WithContainerOptions(opts ...container.Option) Option {
	return func(a *Application) {
		a.options = append(a.options, opts...)
	}
}

// New 创建 Application。
func New(opts ...Option) *Application {
	a := &Application{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run 依次加载配置、初始化日志并构造容器。
//
// 配置文件路径优先级：
//  1. 默认：./config.yaml（不存在时使用默认配置）
//  2. 环境变量：WSGARDEN_CONFIG_FILE_PATH
//  3. WithConfigPath
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}

	ccfg, err := container.LoadConfig(a.cfg)
	if err != nil {
		return fmt.Errorf("load container config: %w", err)
	}
	opts := append([]container.Option{container.WithConfig(ccfg)}, a.options...)
	a.container = container.New(opts...)
	if lg, ok := a.loggers["container"]; ok {
		a.container.SetLogger(lg)
	}
	zlog.Info("application started", zap.String("config", a.cfg.ConfigFile()))
	return nil
}

// Config 返回已加载的配置。
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Container 返回 Run 构造的容器，Run 之前为 nil。
func (a *Application) Container() *container.Container {
	return a.container
}

// Shutdown 关闭容器并刷新日志。
func (a *Application) Shutdown() error {
	var err error
	if a.container != nil {
		err = a.container.Close()
	}
	_ = zlog.Sync()
	return err
}

// Logger 返回配置中声明的具名日志器，未声明时回退到全局日志器。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv(envConfigPath); envPath != "" {
		configPath = envPath
		explicit = true
	}
	if a.configPath != "" {
		configPath = a.configPath
		explicit = true
	}

	cfg := zviper.New()
	if !explicit {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return cfg, nil
		}
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	return cfg, nil
}

func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 根据 WSGARDEN_LOG_* 环境变量配置全局日志：
//   - WSGARDEN_LOG_ENABLE: "1"/"true" 开启输出，其余视为关闭。
//   - WSGARDEN_LOG_LEVEL: 日志级别，默认 info。
//   - WSGARDEN_LOG_STDOUT: 是否输出到标准输出，默认 false。
//   - WSGARDEN_LOG_FILE_DIR: 日志目录。
//   - WSGARDEN_LOG_FILE: 日志文件名，留空不写文件。
//   - WSGARDEN_LOG_FORMAT: text 或 json，默认 text。
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("WSGARDEN_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:  getenvDefault("WSGARDEN_LOG_LEVEL", "info"),
		Format: getenvDefault("WSGARDEN_LOG_FORMAT", "text"),
		Stdout: getenvBool("WSGARDEN_LOG_STDOUT", false),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("WSGARDEN_LOG_FILE_DIR", ""),
			Filename: getenvDefault("WSGARDEN_LOG_FILE", ""),
		},
	}
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 按 logging 键创建具名日志器。
//
//	logging:
//	  container:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: container.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, err := zlog.NewMLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = logger.With(zlog.FieldModule(name))
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
