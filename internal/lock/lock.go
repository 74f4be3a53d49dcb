// Package lock keeps extraction and replay from sharing a snapshot store.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Holder describes the process that owns a store lock, as written into
// the lock file.
type Holder struct {
	PID     int
	Command string
	Since   time.Time
}

// LockHeldError is returned when another stage already holds the store.
type LockHeldError struct {
	Holder
	Path string
}

func (e *LockHeldError) Error() string {
	who := e.Command
	if who == "" {
		who = "another stage"
	}
	msg := fmt.Sprintf("snapshot store in use by %s (pid %d, lock %s)", who, e.PID, e.Path)
	if !e.Since.IsZero() {
		msg += " since " + e.Since.Format(time.RFC3339)
	}
	return msg
}

// Lock is a held store lock. The lock lives as long as its file
// descriptor, so a crashed stage never leaves the store locked.
type Lock struct {
	file *os.File
	path string
}

// PathFor returns the lock file guarding the store at dbPath.
func PathFor(dbPath string) string {
	return dbPath + ".lock"
}

// Acquire takes an exclusive, non-blocking flock on PathFor(dbPath) and
// records the caller as the holder.
func Acquire(dbPath string, command string) (*Lock, error) {
	path := PathFor(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		data, _ := os.ReadFile(path)
		return nil, &LockHeldError{Holder: parseHolder(string(data)), Path: path}
	}

	if err := writeHolder(f, Holder{PID: os.Getpid(), Command: command, Since: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes its file. Safe on a nil or already
// released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeHolder(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ncommand=%s\ntime=%s\n", h.PID, h.Command, h.Since.Format(time.RFC3339))
	return err
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "command":
			h.Command = value
		case "time":
			h.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h
}
