package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"katydid-common-validation/pkg/logger"
)

// EnvPrefix 环境变量前缀，例如 KATYDID_VALIDATION_LOG_LEVEL
const EnvPrefix = "KATYDID_VALIDATION"

// Config 验证引擎配置
type Config struct {
	// ReflectablePackages 允许跨包传播规则的基类型包路径
	ReflectablePackages []string `mapstructure:"reflectable_packages" yaml:"reflectable_packages"`
	// RuleFiles 外部规则文件
	RuleFiles []string `mapstructure:"rule_files" yaml:"rule_files"`
	// Log 日志配置
	Log logger.Config `mapstructure:"log" yaml:"log"`
}

// Default 默认配置
func Default() *Config {
	return &Config{Log: logger.DefaultConfig()}
}

// newViper 创建带默认值和环境变量绑定的 viper 实例
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("validation")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := logger.DefaultConfig()
	v.SetDefault("reflectable_packages", []string{})
	v.SetDefault("rule_files", []string{})
	v.SetDefault("log.level", defaults.Level)
	v.SetDefault("log.format", defaults.Format)
	v.SetDefault("log.file", defaults.File)
	v.SetDefault("log.max_size_mb", defaults.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.MaxBackups)
	v.SetDefault("log.max_age_days", defaults.MaxAgeDays)
	v.SetDefault("log.compress", defaults.Compress)
	return v
}

// Load 读取配置
// path 非空时只读取该文件，文件不存在返回错误；
// path 为空时在当前目录查找 validation.yaml，找不到时使用默认值
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, errors.Wrap(err, "reading validation config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding validation config")
	}
	return &cfg, nil
}
