package viper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `mapstructure:"name"`
	Items []string `mapstructure:"items"`
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"demo":{"name":"echo","items":["a","b"]}}`), 0o600))

	c := New()
	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, path, c.ConfigFile())
	assert.True(t, c.IsSet("demo.name"))

	var out sample
	require.NoError(t, c.UnmarshalKey("demo", &out))
	assert.Equal(t, sample{Name: "echo", Items: []string{"a", "b"}}, out)

	// 不存在的键保持 dst 原值
	missing := sample{Name: "keep"}
	require.NoError(t, c.UnmarshalKey("absent", &missing))
	assert.Equal(t, "keep", missing.Name)

	assert.Error(t, c.LoadFile(filepath.Join(dir, "nope.yaml")))
}
