// Package lock keeps a profile's data directory to a single daemon.
package lock

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// HeldError reports that some other daemon already serves the profile.
type HeldError struct {
	PID  int
	Path string
}

func (e *HeldError) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("profile is in use (%s)", e.Path)
	}
	return fmt.Sprintf("profile is in use by pid %d (%s)", e.PID, e.Path)
}

// Lock is a held profile lock. The zero value and nil are both released.
type Lock struct {
	file *os.File
	path string
}

// Acquire creates dir if needed and takes a non-blocking flock on its LOCK
// file, then records this process in it. A busy lock yields *HeldError.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("lock: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		pid := readPID(f)
		_ = f.Close()
		return nil, &HeldError{PID: pid, Path: path}
	}
	if err := stamp(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock: record holder: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// stamp replaces the file body with the current pid and start time.
func stamp(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nsince=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return err
}

// Holder returns the pid written in dir's lock file, 0 if there is none.
func Holder(dir string) int {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()
	return readPID(f)
}

func readPID(r io.Reader) int {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		v, ok := strings.CutPrefix(sc.Text(), "pid=")
		if !ok {
			continue
		}
		if pid, err := strconv.Atoi(v); err == nil {
			return pid
		}
		break
	}
	return 0
}

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	_ = os.Remove(l.path)
	return f.Close()
}
