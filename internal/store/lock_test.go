package store

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestAcquireInstanceLockExclusive(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireInstanceLock(dir, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v", err)
	}
	defer lock.Release()

	if _, err := AcquireInstanceLock(dir, LockOptions{}); err == nil {
		t.Fatalf("second acquire succeeded, want lock-exists error")
	}
}

func TestAcquireInstanceLockOwnerRunningNoTakeover(t *testing.T) {
	dir := t.TempDir()
	// The lock names this test process, which is definitely alive.
	writeLock(t, dir, os.Getpid(), time.Now().Add(-time.Hour))

	_, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true, StaleAfter: time.Minute})
	if err == nil {
		t.Fatalf("acquire succeeded against a running owner")
	}
	if !strings.Contains(err.Error(), "owner_process_running") {
		t.Fatalf("error = %v, want owner_process_running", err)
	}
}

func TestAcquireInstanceLockTakesOverDeadOwner(t *testing.T) {
	dir := t.TempDir()
	writeLock(t, dir, findDeadPID(t), time.Now())

	lock, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true})
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v, want takeover of dead owner", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(filepath.Join(dir, ".instance.lock"))
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if !strings.Contains(string(data), "pid="+strconv.Itoa(os.Getpid())) {
		t.Fatalf("lock not rewritten with our pid: %s", data)
	}
}

func TestAcquireInstanceLockTakesOverStaleAnonymousLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".instance.lock")
	payload := "started_at=" + time.Now().Add(-2*time.Hour).UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	lock, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true, StaleAfter: time.Hour})
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v, want stale takeover", err)
	}
	defer lock.Release()
}

func TestAcquireInstanceLockKeepsFreshAnonymousLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".instance.lock")
	payload := "started_at=" + time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	_, err := AcquireInstanceLock(dir, LockOptions{TakeoverEnabled: true, StaleAfter: time.Hour})
	if err == nil {
		t.Fatalf("acquire succeeded against a fresh lock")
	}
	if !strings.Contains(err.Error(), "lock_not_stale") {
		t.Fatalf("error = %v, want lock_not_stale", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireInstanceLock(dir, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireInstanceLock() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".instance.lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file still present after release")
	}
	if _, err := AcquireInstanceLock(dir, LockOptions{}); err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
}

func writeLock(t *testing.T, dir string, pid int, startedAt time.Time) {
	t.Helper()
	payload := "pid=" + strconv.Itoa(pid) + "\nstarted_at=" + startedAt.UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(filepath.Join(dir, ".instance.lock"), []byte(payload), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
}

// findDeadPID returns a pid with no live process behind it.
func findDeadPID(t *testing.T) int {
	t.Helper()
	for pid := 1 << 22; pid > 1<<18; pid -= 997 {
		if !isProcessAlive(pid) {
			return pid
		}
	}
	t.Fatalf("no dead pid found")
	return 0
}
