package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mindfulsc/mindful/internal/config"
	"github.com/mindfulsc/mindful/internal/state"
	"github.com/stretchr/testify/require"
)

// SetupTestDir creates a temporary directory holding a mindful.yaml built
// from SampleConfigYAML, with the storage path pointing inside the directory.
// Returns the directory and the config file path.
func SetupTestDir(t *testing.T) (string, string) {
	t.Helper()

	tmpDir := t.TempDir()
	storagePath := filepath.Join(tmpDir, "storage.json")
	content := strings.Replace(SampleConfigYAML, "path: storage.json", "path: "+storagePath, 1)

	cfgPath := filepath.Join(tmpDir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	return tmpDir, cfgPath
}

// IsolateEnv blanks every variable read by config.ApplyEnv for the
// duration of the test. Empty values are ignored by the loader.
func IsolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvPort,
		config.EnvBackendURL,
		config.EnvJWTSecret,
		config.EnvRedisAddr,
		config.EnvLogLevel,
		config.EnvStorage,
		config.EnvStoragePath,
		config.EnvForwardCreds,
	} {
		t.Setenv(name, "")
	}
}

// NewTestStore opens a session store of the given backend in a temp
// directory. The store is closed when the test completes.
func NewTestStore(t *testing.T, backend string) state.Store {
	t.Helper()

	path := ""
	switch backend {
	case state.BackendFile:
		path = filepath.Join(t.TempDir(), "storage.json")
	case state.BackendSQLite:
		path = filepath.Join(t.TempDir(), "storage.db")
	}

	store, err := state.Open(backend, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustMarshalJSON marshals v to JSON or fails the test.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// MustUnmarshalJSON unmarshals data into v or fails the test.
func MustUnmarshalJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

// WriteTestFile writes content to a file relative to basePath.
// Creates parent directories as needed.
func WriteTestFile(t *testing.T, basePath, relativePath string, content []byte) {
	t.Helper()
	fullPath := filepath.Join(basePath, relativePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, content, 0o644))
}

// SyncBuffer is a bytes.Buffer guarded by a mutex, for capturing log output
// written from server goroutines.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
