package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"lingzhi-client/log"
)

// 环境变量，优先级高于配置文件
const (
	EnvHost        = "LINGZHI_HOST"
	EnvScheme      = "LINGZHI_SCHEME"
	EnvAudio       = "LINGZHI_AUDIO"
	EnvLogLevel    = "LINGZHI_LOG_LEVEL"
	EnvMetricsAddr = "LINGZHI_METRICS_ADDR"
)

// Config 表示客户端的完整配置
type Config struct {
	Server     ServerConfig   `yaml:"server"`   // 智能体服务器配置
	Audio      AudioConfig    `yaml:"audio"`    // 音频配置
	Log        log.LogConfig  `yaml:"log"`      // 日志配置
	Metrics    MetricsConfig  `yaml:"metrics"`  // 监控指标配置
	Loopback   LoopbackConfig `yaml:"loopback"` // 本地回环智能体配置
	ConfigPath string         `yaml:"-"`        // 配置文件路径，不存储在YAML中
}

// ServerConfig 表示智能体服务器的连接配置
type ServerConfig struct {
	Scheme           string        `yaml:"scheme"`            // ws 或 wss
	Host             string        `yaml:"host"`              // 主机:端口
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // 握手超时
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // 写超时
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`   // 意外断开后的重连等待
}

// AudioConfig 表示音频采集和播放的配置
type AudioConfig struct {
	Enabled               bool          `yaml:"enabled"`                  // 启动时进入语音模式
	FlushInterval         time.Duration `yaml:"flush_interval"`           // 音频发送窗口
	InputSampleRate       int           `yaml:"input_sample_rate"`        // 麦克风采样率
	OutputSampleRate      int           `yaml:"output_sample_rate"`       // 扬声器采样率
	InputFramesPerBuffer  int           `yaml:"input_frames_per_buffer"`  // 每次采集的采样点数
	OutputFramesPerBuffer int           `yaml:"output_frames_per_buffer"` // 每次播放的采样点数
}

// MetricsConfig 为空地址时不启动指标服务
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoopbackConfig 表示本地回环智能体的配置
type LoopbackConfig struct {
	Addr           string        `yaml:"addr"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
	FrameBytes     int           `yaml:"frame_bytes"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Scheme:           "ws",
			Host:             "localhost:8000",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			ReconnectDelay:   5 * time.Second,
		},
		Audio: AudioConfig{
			FlushInterval:         200 * time.Millisecond,
			InputSampleRate:       16000,
			OutputSampleRate:      24000,
			InputFramesPerBuffer:  1600,
			OutputFramesPerBuffer: 960,
		},
		Log: log.LogConfig{
			LogLevel: "info",
			// 控制台留给交互界面，日志默认只写文件
			LogFile: "logs/client.log",
		},
		Loopback: LoopbackConfig{
			Addr:           "127.0.0.1:8000",
			SilenceTimeout: 500 * time.Millisecond,
			FrameBytes:     4800,
		},
	}
}

// LoadConfig 加载配置：默认值，然后YAML文件，然后.env和环境变量
// 参数:
//   - configPath: 配置文件路径，文件不存在时使用默认值
//
// 返回:
//   - *Config: 加载的配置对象
//   - error: 如果加载或校验失败，返回错误信息
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()
	cfg.ConfigPath = configPath

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
			cfg.ConfigPath = ""
		case err != nil:
			return nil, errors.Wrap(err, "读取配置文件失败")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(err, "解析配置文件失败")
			}
		}
	}

	// .env 不会覆盖已经存在的环境变量
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "读取.env失败")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 通过viper读取环境变量，只覆盖已设置的项
func (c *Config) applyEnv() error {
	v := viper.New()
	for key, env := range map[string]string{
		"host":         EnvHost,
		"scheme":       EnvScheme,
		"audio":        EnvAudio,
		"log_level":    EnvLogLevel,
		"metrics_addr": EnvMetricsAddr,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return errors.Wrapf(err, "绑定环境变量 %s 失败", env)
		}
	}

	if v.IsSet("host") {
		c.Server.Host = v.GetString("host")
	}
	if v.IsSet("scheme") {
		c.Server.Scheme = strings.ToLower(v.GetString("scheme"))
	}
	if v.IsSet("audio") {
		enabled, err := cast.ToBoolE(v.Get("audio"))
		if err != nil {
			return errors.Wrapf(err, "%s 不是有效的布尔值", EnvAudio)
		}
		c.Audio.Enabled = enabled
	}
	if v.IsSet("log_level") {
		c.Log.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("metrics_addr") {
		c.Metrics.Addr = v.GetString("metrics_addr")
	}
	return nil
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if c.Server.Scheme != "ws" && c.Server.Scheme != "wss" {
		return errors.Errorf("不支持的scheme: %q", c.Server.Scheme)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return errors.New("server.host 不能为空")
	}

	durations := map[string]time.Duration{
		"server.handshake_timeout": c.Server.HandshakeTimeout,
		"server.write_timeout":     c.Server.WriteTimeout,
		"server.reconnect_delay":   c.Server.ReconnectDelay,
		"audio.flush_interval":     c.Audio.FlushInterval,
		"loopback.silence_timeout": c.Loopback.SilenceTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return errors.Errorf("%s 必须大于0", name)
		}
	}

	sizes := map[string]int{
		"audio.input_sample_rate":        c.Audio.InputSampleRate,
		"audio.output_sample_rate":       c.Audio.OutputSampleRate,
		"audio.input_frames_per_buffer":  c.Audio.InputFramesPerBuffer,
		"audio.output_frames_per_buffer": c.Audio.OutputFramesPerBuffer,
		"loopback.frame_bytes":           c.Loopback.FrameBytes,
	}
	for name, n := range sizes {
		if n <= 0 {
			return errors.Errorf("%s 必须大于0", name)
		}
	}
	return nil
}
