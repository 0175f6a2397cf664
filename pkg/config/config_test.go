package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katydid-common-validation/pkg/logger"
)

const sample = `
reflectable_packages:
  - katydid-common-validation/pkg/models
rule_files:
  - rules/user.yaml
  - rules/order.yaml
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "validation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoad 测试读取配置文件
func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"katydid-common-validation/pkg/models"}, cfg.ReflectablePackages)
	assert.Equal(t, []string{"rules/user.yaml", "rules/order.yaml"}, cfg.RuleFiles)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// 文件中没有的键使用默认值
	assert.Equal(t, logger.DefaultConfig().MaxSizeMB, cfg.Log.MaxSizeMB)
}

// TestLoad_Env 测试环境变量覆盖
func TestLoad_Env(t *testing.T) {
	t.Setenv("KATYDID_VALIDATION_LOG_LEVEL", "error")

	cfg, err := Load(writeConfig(t, t.TempDir(), sample))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// TestLoad_Missing 测试配置文件缺失
func TestLoad_Missing(t *testing.T) {
	t.Run("显式路径不存在", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("默认路径不存在使用默认值", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(t.TempDir()))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default().Log, cfg.Log)
		assert.Empty(t, cfg.RuleFiles)
	})
}
