package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhildatla/vsp/pkg/vm"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	vc := c.VMConfig()
	assert.Equal(t, vm.Sil128, vc.Mode)
	assert.Equal(t, vm.DefaultHeapStates, vc.HeapStates)
	assert.Equal(t, int64(0), vc.MaxSteps)

	bc := c.BatchConfig()
	assert.Equal(t, 1024, bc.MaxBatchStates)
	assert.Equal(t, 5*time.Millisecond, bc.MaxWait)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[vm]
mode = "SIL-32"
max-steps = 5000

[batch]
enabled = true
max-wait = "20ms"

[log]
level = "debug"
format = "json"

[cache]
size = 0

[metrics]
enabled = true
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(c.Path))
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	assert.True(t, c.Batch.Enabled)
	assert.True(t, c.Metrics.Enabled)

	vc := c.VMConfig()
	assert.Equal(t, vm.Sil32, vc.Mode)
	assert.Equal(t, int64(5000), vc.MaxSteps)
	assert.Equal(t, 0, vc.CacheSize)
	// Unset keys keep their defaults.
	assert.Equal(t, vm.DefaultStackFrames, vc.StackFrames)

	bc := c.BatchConfig()
	assert.Equal(t, 20*time.Millisecond, bc.MaxWait)
	assert.Equal(t, 1024, bc.MaxBatchStates)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[vm\nmode = 1", "parse error"},
		{"unknown key", "[vm]\nturbo = true", "unknown key"},
		{"bad mode", "[vm]\nmode = \"SIL-12\"", "vm.mode"},
		{"negative heap", "[vm]\nheap-states = -1", "vm.heap-states"},
		{"bad duration", "[batch]\nmax-wait = \"soon\"", "parse error"},
		{"bad format", "[log]\nformat = \"xml\"", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[vm]\nmode = \"SIL-16\"\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	c, err := FindAndLoad(nested)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, vm.Sil16, c.VMConfig().Mode)
	assert.Equal(t, filepath.Join(root, FileName), c.Path)
}

func TestFindAndLoad_NotFound(t *testing.T) {
	// Temp dirs normally have no vsp.toml above them.
	dir := t.TempDir()
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), FileName)); err == nil {
		t.Skip("a vsp.toml exists above the temp dir")
	}
	c, err := FindAndLoad(dir)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestWriteRoundTrip(t *testing.T) {
	c := Default()
	c.VM.Mode = "SIL-64"
	c.Batch.MaxWait = Duration{250 * time.Microsecond}
	c.Metrics.Enabled = true

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, c.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	loaded.Path = ""
	assert.Equal(t, c, loaded)
}
