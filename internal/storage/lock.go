package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when another live server holds the database
var ErrLocked = errors.New("database is in use by another triage server")

// LockFileName sits next to the database file
const LockFileName = "serve.lock"

// ServerLock is the lock file claiming a database for one serving process.
// Per-issue serialization is in-process, so two servers on one database
// would race on the same issues.
type ServerLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Addr      string    `json:"addr"`
}

// AcquireServerLock writes the lock file next to dbPath. A lock left by a dead
// process on this host is overwritten. Returns the lock path for release.
func AcquireServerLock(dbPath, addr string) (lockPath string, err error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}
	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	lockPath = filepath.Join(dir, LockFileName)

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing ServerLock
		if json.Unmarshal(data, &existing) == nil && isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w (PID %d on %s, listening on %s since %s)", ErrLocked,
				existing.PID, existing.Hostname, existing.Addr, existing.StartedAt.Format(time.RFC3339))
		}
		// Stale lock - will overwrite
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ServerLock{
		Holder:    "triage-serve",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Addr:      addr,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to create server lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseServerLock removes the lock file
func ReleaseServerLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove server lock: %w", err)
	}
	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Processes on other hosts are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks existence; EPERM means it exists but is not ours
	err = process.Signal(syscall.Signal(0))
	if err == nil || errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
