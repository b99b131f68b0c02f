package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "triage.db")

	lockPath, err := AcquireServerLock(dbPath, ":8080")
	require.NoError(t, err)
	assert.Equal(t, LockFileName, filepath.Base(lockPath))

	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	var lock ServerLock
	require.NoError(t, json.Unmarshal(data, &lock))
	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, ":8080", lock.Addr)

	// this process is alive, so a second acquire fails
	_, err = AcquireServerLock(dbPath, ":9090")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, ReleaseServerLock(lockPath))
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, ReleaseServerLock(lockPath), "releasing twice is fine")
	assert.NoError(t, ReleaseServerLock(""))
}

func TestServerLock_StaleLockIsReplaced(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "triage.db")
	hostname, err := os.Hostname()
	require.NoError(t, err)

	stale, err := json.Marshal(ServerLock{PID: 999999999, Hostname: hostname, StartedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), stale, 0o644))

	lockPath, err := AcquireServerLock(dbPath, ":8080")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ReleaseServerLock(lockPath) })
}
