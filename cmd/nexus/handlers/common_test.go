package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/nexus/internal/config"
)

// saveAndRestoreFactories saves and restores all factory functions.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origFindConfigFile := findConfigFile
	origLoadConfigFile := loadConfigFile
	origNewLogger := newLogger
	origNewProfileProvider := newProfileProvider
	origNewCredentialProvider := newCredentialProvider
	origNewObjectStore := newObjectStore
	origOpenHistory := openHistory
	origNewRegistry := newRegistry
	origIsInteractive := isInteractive
	origIsInputTerminal := isInputTerminal
	origRunDashboard := runDashboard
	origStdout := stdout

	t.Cleanup(func() {
		findConfigFile = origFindConfigFile
		loadConfigFile = origLoadConfigFile
		newLogger = origNewLogger
		newProfileProvider = origNewProfileProvider
		newCredentialProvider = origNewCredentialProvider
		newObjectStore = origNewObjectStore
		openHistory = origOpenHistory
		newRegistry = origNewRegistry
		isInteractive = origIsInteractive
		isInputTerminal = origIsInputTerminal
		runDashboard = origRunDashboard
		stdout = origStdout
	})
}

// captureStdout redirects command output into a buffer.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	stdout = buf
	return buf
}

// memoryStore is an in-memory objectStore.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) PutObject(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (m *memoryStore) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s: not found", key)
	}
	return data, nil
}

func (m *memoryStore) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if rest, ok := strings.CutPrefix(k, bucket+"/"); ok && strings.HasPrefix(rest, prefix) {
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) keys() []string {
	keys, _ := m.ListObjects(context.Background(), "nexus-reports", "")
	return keys
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_EmptyPath_NoDefaultFile(t *testing.T) {
	saveAndRestoreFactories(t)

	findConfigFile = func() (string, error) {
		return "", errors.New("config file nexus.yaml not found")
	}

	_, err := loadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config file found")
	assert.Contains(t, err.Error(), "--config")
}

func TestLoadConfig_EmptyPath_UsesFoundFile(t *testing.T) {
	saveAndRestoreFactories(t)

	findConfigFile = func() (string, error) { return "/etc/nexus/nexus.yaml", nil }
	var loaded string
	loadConfigFile = func(path string) (*config.Config, error) {
		loaded = path
		return &config.Config{}, nil
	}

	_, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/etc/nexus/nexus.yaml", loaded)
}

func TestLoadConfig_LoadError(t *testing.T) {
	saveAndRestoreFactories(t)

	loadConfigFile = func(string) (*config.Config, error) {
		return nil, errors.New("failed to parse YAML")
	}

	_, err := loadConfig("nexus.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestSetupLogging(t *testing.T) {
	saveAndRestoreFactories(t)
	t.Setenv("NEXUS_LOG_LEVEL", "")
	t.Setenv("NEXUS_LOG_FORMAT", "")

	ctx, err := SetupLogging(context.Background(), "debug", "console")
	require.NoError(t, err)
	assert.True(t, logr.FromContextOrDiscard(ctx).V(1).Enabled())

	_, err = SetupLogging(context.Background(), "loud", "console")
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	r, err := defaultRegistry()
	require.NoError(t, err)
	assert.True(t, r.Has("simulated"))
}
