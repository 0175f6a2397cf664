package logger

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	// Level 日志级别：debug / info / warn / error
	Level string `mapstructure:"level" yaml:"level"`
	// Format 输出格式：console / json
	Format string `mapstructure:"format" yaml:"format"`
	// File 日志文件路径，为空时输出到标准错误
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeMB 单个文件最大尺寸
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups 保留的旧文件个数
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// MaxAgeDays 旧文件保留天数
	MaxAgeDays int `mapstructure:"max_age_days" yaml:"max_age_days"`
	// Compress 是否压缩旧文件
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig 默认配置：info 级别，console 格式，输出到标准错误
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// New 根据配置创建 zap 日志
func New(cfg Config) (*zap.Logger, error) {
	// 空字符串按 info 处理
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", cfg.Level)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, writer(cfg), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()), nil
}

// Must 创建日志，失败时 panic
func Must(cfg Config) *zap.Logger {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// writer 文件输出使用 lumberjack 滚动
func writer(cfg Config) zapcore.WriteSyncer {
	if cfg.File == "" {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}
