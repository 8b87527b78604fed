package datasetcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfigFile(t *testing.T, path string, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func waitForConfig(t *testing.T, ch <-chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config update")
		return nil
	}
}

func TestConfigWatcherBroadcastsUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	writeConfigFile(t, path, "project: one\n")

	watcher, err := NewConfigWatcher(&ConfigWatcherOptions[*Config]{
		Logger: zap.NewNop(),
		Path:   path,
		Decode: Parse,
	})
	require.NoError(t, err)
	defer watcher.Close()

	ch := make(chan *Config, 8)
	unsubscribe := watcher.Subscribe(ch)
	defer unsubscribe()

	writeConfigFile(t, path, "project: two\n")

	cfg := waitForConfig(t, ch)
	assert.Equal(t, "two", cfg.Project)
}

func TestConfigWatcherDropsUndecodableUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	writeConfigFile(t, path, "project: one\n")

	watcher, err := NewConfigWatcher(&ConfigWatcherOptions[*Config]{
		Logger: zap.NewNop(),
		Path:   path,
		Decode: Parse,
	})
	require.NoError(t, err)
	defer watcher.Close()

	ch := make(chan *Config, 8)
	defer watcher.Subscribe(ch)()

	writeConfigFile(t, path, "datasets: [not, a, map]\n")
	writeConfigFile(t, path, "project: three\n")

	cfg := waitForConfig(t, ch)
	assert.Equal(t, "three", cfg.Project)
}

func TestConfigWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	writeConfigFile(t, path, "project: one\n")

	watcher, err := NewConfigWatcher(&ConfigWatcherOptions[*Config]{
		Logger: zap.NewNop(),
		Path:   path,
		Decode: Parse,
	})
	require.NoError(t, err)
	defer watcher.Close()

	ch := make(chan *Config, 8)
	unsubscribe := watcher.Subscribe(ch)
	unsubscribe()

	writeConfigFile(t, path, "project: two\n")

	select {
	case cfg := <-ch:
		t.Fatalf("received update after unsubscribe: %+v", cfg)
	case <-time.After(250 * time.Millisecond):
	}
}

func TestConfigWatcherMissingFile(t *testing.T) {
	_, err := NewConfigWatcher(&ConfigWatcherOptions[*Config]{
		Logger: zap.NewNop(),
		Path:   filepath.Join(t.TempDir(), "missing.yaml"),
		Decode: Parse,
	})
	require.Error(t, err)
}
