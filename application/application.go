package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	zlog "github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/codec"
	zviper "github.com/lk2023060901/danmu-garden-bundle/pkg/util/viper"
)

const (
	// DefaultConfigPath 为默认配置文件路径，文件不存在时使用空配置。
	DefaultConfigPath = "./config.yaml"

	envConfigPath = "BUNDLE_CONFIG_FILE_PATH"
	envLogEnable  = "BUNDLE_LOG_ENABLE"
	envLogLevel   = "BUNDLE_LOG_LEVEL"
	envLogStdout  = "BUNDLE_LOG_STDOUT"
	envLogFileDir = "BUNDLE_LOG_FILE_DIR"
	envLogFile    = "BUNDLE_LOG_FILE"
	envLogFormat  = "BUNDLE_LOG_FORMAT"
)

// Application 是 bundle 工具的运行时容器，持有配置、日志与编解码器。
type Application struct {
	cfg      *zviper.Config
	loggers  map[string]*zlog.MLogger
	codecCfg codec.Config
	codec    codec.Codec
}

// New 创建一个新的 Application。
func New() *Application {
	return &Application{codecCfg: codec.DefaultConfig()}
}

// Run 加载配置并初始化公共依赖。
//
// 配置文件路径优先级（由低到高）：
//  1. 默认：./config.yaml
//  2. 环境变量：BUNDLE_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
//
// args 通常为 os.Args[1:]。
func (a *Application) Run(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	if err := a.initMetrics(); err != nil {
		return err
	}
	return a.initCodec()
}

// Config 返回已加载的配置。
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// CodecConfig 返回生效的编解码配置。
func (a *Application) CodecConfig() codec.Config {
	return a.codecCfg
}

// Codec 返回按配置组装的编解码器，Run 之前为 nil。
func (a *Application) Codec() codec.Codec {
	return a.codec
}

// Logger 返回具名模块的 logger，日志均带有 module 字段。
func (a *Application) Logger(name string) *zlog.MLogger {
	return zlog.Ctx(a.WithModule(context.Background(), name))
}

// WithModule 返回携带模块 logger 的上下文。
// logging 中配置了同名模块时使用其独立输出，否则沿用 ctx 中的 logger。
func (a *Application) WithModule(ctx context.Context, name string) context.Context {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		ctx = context.WithValue(ctx, zlog.CtxLogKey, lg)
	}
	return zlog.WithModule(ctx, name)
}

// loadConfig 解析配置文件路径并加载。
func (a *Application) loadConfig(args []string) (*zviper.Config, error) {
	configPath := DefaultConfigPath
	explicit := false

	if envPath := os.Getenv(envConfigPath); envPath != "" {
		configPath = envPath
		explicit = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	cfg := zviper.New()
	if !explicit {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
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

// initGlobalLoggerFromEnv 根据 BUNDLE_LOG_* 环境变量配置进程级 logger。
//
//   - BUNDLE_LOG_ENABLE：为 "1"/"true" 时开启输出，否则全部丢弃。
//   - BUNDLE_LOG_LEVEL：日志级别，默认 "info"。
//   - BUNDLE_LOG_STDOUT：是否输出到标准输出，默认 false。
//   - BUNDLE_LOG_FILE_DIR：日志目录。
//   - BUNDLE_LOG_FILE：日志文件名，留空表示不写文件。
//   - BUNDLE_LOG_FORMAT：日志格式（"text" 或 "json"，默认 "text"）。
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool(envLogEnable, false)

	cfg := &zlog.Config{
		Level:  getenvDefault(envLogLevel, "info"),
		Format: getenvDefault(envLogFormat, "text"),
		Stdout: getenvBool(envLogStdout, false),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault(envLogFileDir, ""),
			Filename: getenvDefault(envLogFile, ""),
		},
	}

	// 未开启时所有输出都丢弃，避免污染命令行输出。
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

// initModuleLoggersFromConfig 按 "logging" 节点创建具名 logger。
//
// 示例：
//
//	logging:
//	  packer:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: packer.log
func (a *Application) initModuleLoggersFromConfig() error {
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
		logger, _, err := zlog.NewLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}
	return nil
}

// initMetrics 在 metrics.enable 为 true 时向默认 registry 注册指标。
func (a *Application) initMetrics() error {
	var mc struct {
		Enable bool `mapstructure:"enable"`
	}
	if err := a.cfg.UnmarshalKey("metrics", &mc); err != nil {
		return fmt.Errorf("load metrics config: %w", err)
	}
	if mc.Enable {
		metrics.Register(prometheus.DefaultRegisterer)
	}
	return nil
}

func (a *Application) initCodec() error {
	cc, err := codec.LoadConfig(a.cfg)
	if err != nil {
		return err
	}
	c, err := codec.NewFromConfig(cc)
	if err != nil {
		return fmt.Errorf("init codec: %w", err)
	}
	a.codecCfg = cc
	a.codec = c
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
