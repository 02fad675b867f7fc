package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// uniqueSuffix returns a short random suffix for staging paths, so
// concurrent writers never collide on the same tmp name.
func uniqueSuffix(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "-" + hex.EncodeToString(b[:])
}

// UniqueName returns base with a random suffix appended, suitable for
// scratch/staging directories that must not collide across concurrent
// processes (store population, sync staging).
func UniqueName(base string) string {
	return base + uniqueSuffix(".tmp")
}

// StaleLockAge is how long an advisory lock file may exist before a new
// acquirer is allowed to take it over, treating the prior holder as dead.
// Conservative default: most store/sync operations complete in seconds.
const StaleLockAge = 10 * time.Minute

// Lock is an exclusive advisory lock backed by an O_CREATE|O_EXCL file.
// No flock-style advisory-lock library is present anywhere in the
// retrieved corpus, so this follows the same tmp-file primitive the
// teacher already uses for atomic writes, extended to double as a mutex.
type Lock struct {
	path string
}

// AcquireLock creates path exclusively, writing the current pid and
// hostname for diagnostics. If the file already exists and is older than
// StaleLockAge, it is treated as abandoned and taken over. Returns an
// error if a live lock is held by another process.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			host, _ := os.Hostname()
			fmt.Fprintf(f, "pid=%d host=%s acquired=%s\n", os.Getpid(), host, time.Now().UTC().Format(time.RFC3339Nano))
			f.Close()
			return &Lock{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock %s: %w", path, err)
		}
		if attempt == 0 && isStaleLock(path) {
			_ = os.Remove(path)
			continue
		}
		return nil, fmt.Errorf("lock held: %s", path)
	}
	return nil, fmt.Errorf("lock held: %s", path)
}

func isStaleLock(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleLockAge
}

// Release removes the lock file. Safe to call once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return os.Remove(l.path)
}

// CleanStale removes *.tmp-* and *.tmp entries and *.old rollback
// directories directly under root that a crashed process left behind,
// skipping any modified within the last minute. Lock files are not
// removed here; AcquireLock takes over a stale lock itself.
func CleanStale(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, ".tmp-") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".old") {
			full := filepath.Join(root, name)
			if info, statErr := os.Stat(full); statErr == nil && time.Since(info.ModTime()) < time.Minute {
				continue // likely an in-flight operation from this same run
			}
			_ = os.RemoveAll(full)
		}
	}
	return nil
}

// FormatPID renders a process ID as a decimal string.
func FormatPID(pid int) string {
	return strconv.Itoa(pid)
}
