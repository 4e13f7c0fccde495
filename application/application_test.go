package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/wsgarden/internal/container"
)

func TestRunWithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsgarden.yaml")
	content := `
container:
  connectTimeout: 2s
  closeWaitTime: 1s
  dispatchToWorker: true
  workerPoolSize: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	app := New(WithConfigPath(path), WithContainerOptions(container.WithClientBindAddress("127.0.0.1")))
	require.NoError(t, app.Run())
	defer app.Shutdown()

	c := app.Container()
	require.NotNil(t, c)
	assert.True(t, c.IsDispatchToWorker())
	assert.Equal(t, "127.0.0.1", c.ClientBindAddress())
	assert.Equal(t, path, app.Config().ConfigFile())
	assert.NotNil(t, app.Logger("unknown"))
}

func TestRunWithMissingExplicitConfig(t *testing.T) {
	app := New(WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, app.Run())
	assert.Nil(t, app.Container())
}

func TestShutdownClosesContainer(t *testing.T) {
	t.Setenv(envConfigPath, "")
	chdir(t, t.TempDir())

	// 默认路径下没有配置文件时使用默认配置
	app := New()
	require.NoError(t, app.Run())
	assert.False(t, app.Container().IsClosed())

	start := time.Now()
	require.NoError(t, app.Shutdown())
	assert.True(t, app.Container().IsClosed())
	assert.Less(t, time.Since(start), time.Second)
}
