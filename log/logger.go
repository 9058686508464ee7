package log

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// LogConfig 包含日志系统的配置信息
type LogConfig struct {
	// LogLevel 是最低输出的日志级别
	LogLevel string `yaml:"log_level"`
	// LogFile 是日志文件的路径，为空时不写文件
	LogFile string `yaml:"log_file"`
	// EnableConsole 决定是否同时将日志输出到控制台
	EnableConsole bool `yaml:"enable_console"`
	// EnableJSON 决定日志是否使用JSON格式
	EnableJSON bool `yaml:"enable_json"`
}

// 日志级别名称映射表
var levelNames = map[string]zerolog.Level{
	"trace": zerolog.TraceLevel,
	"debug": zerolog.DebugLevel,
	"info":  zerolog.InfoLevel,
	"warn":  zerolog.WarnLevel,
	"error": zerolog.ErrorLevel,
	"fatal": zerolog.FatalLevel,
}

// logger 是包级别的日志记录器，Init之前输出到标准错误
var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
	With().Timestamp().Logger().
	Level(zerolog.InfoLevel)

// ParseLevel 将字符串日志级别转换为zerolog级别，无效值返回InfoLevel
func ParseLevel(s string) zerolog.Level {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return zerolog.InfoLevel
	}
	return level
}

// Init 根据给定的配置初始化日志系统
// 参数：
//   - config：日志配置信息，包含日志级别、文件路径等
//
// 返回：
//   - error：如果初始化失败，返回错误信息
func Init(config *LogConfig) error {
	var writers []io.Writer

	// 如果配置了日志文件，添加文件输出
	if config.LogFile != "" {
		logDir := filepath.Dir(config.LogFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return errors.Wrap(err, "创建日志目录失败")
		}

		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "打开日志文件失败")
		}
		// 文件里始终写JSON，便于后续检索
		writers = append(writers, file)
	}

	if config.EnableConsole {
		if config.EnableJSON {
			writers = append(writers, os.Stdout)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly})
		}
	}

	var output io.Writer
	switch len(writers) {
	case 0:
		output = io.Discard
	case 1:
		output = writers[0]
	default:
		output = zerolog.MultiLevelWriter(writers...)
	}

	SetOutput(output, ParseLevel(config.LogLevel))
	logger.Info().Msgf("日志系统已初始化，级别：%s", ParseLevel(config.LogLevel))
	return nil
}

// SetOutput 替换日志输出目标和级别，测试中用来捕获日志
func SetOutput(w io.Writer, level zerolog.Level) {
	logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// With 返回带有组件名称的子日志记录器
func With(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// Debugf 以调试级别记录格式化的消息
func Debugf(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}

// Infof 以信息级别记录格式化的消息
func Infof(format string, args ...interface{}) {
	logger.Info().Msgf(format, args...)
}

// Warnf 以警告级别记录格式化的消息
func Warnf(format string, args ...interface{}) {
	logger.Warn().Msgf(format, args...)
}

// Errorf 以错误级别记录格式化的消息
func Errorf(format string, args ...interface{}) {
	logger.Error().Msgf(format, args...)
}

// Fatalf 以致命错误级别记录格式化的消息，然后退出程序
func Fatalf(format string, args ...interface{}) {
	logger.Fatal().Msgf(format, args...)
}
