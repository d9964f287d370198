// Package pidfile records which process owns the daemon. The first line is
// the PID; the optional second line is JSON metadata carrying the process
// start time, so a recycled PID is not mistaken for a live daemon.
package pidfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrRunning is returned by Claim when another live process owns the file.
var ErrRunning = errors.New("daemon already running")

type meta struct {
	StartUnix int64 `json:"start_unix"`
}

// Write records pid and its start time in path.
func Write(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('\n')
	if start := startUnix(pid); start > 0 {
		m, _ := json.Marshal(meta{StartUnix: start})
		b.Write(m)
		b.WriteByte('\n')
	}
	// #nosec G306
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Read returns the PID and recorded start time; start is 0 when absent.
func Read(path string) (pid int, start int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return 0, 0, fmt.Errorf("invalid pid in %s", path)
	}
	if len(lines) >= 2 {
		var m meta
		if json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m) == nil {
			start = m.StartUnix
		}
	}
	return pid, start, nil
}

// Alive reports whether the process recorded in path is still running.
// A missing file is not an error.
func Alive(path string) (bool, int, error) {
	pid, start, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if start > 0 {
		if cur := startUnix(pid); cur > 0 && cur != start {
			// PID reused by an unrelated process
			return false, pid, nil
		}
	}
	return pidAlive(pid), pid, nil
}

// Claim writes pid to path unless a different live process already owns it.
// Stale or unreadable files are overwritten.
func Claim(path string, pid int) error {
	alive, owner, err := Alive(path)
	if err == nil && alive && owner != pid {
		return fmt.Errorf("%w with pid %d (%s)", ErrRunning, owner, path)
	}
	return Write(path, pid)
}

// Remove deletes path; a missing file is fine.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

// startUnix is the process start time in Unix seconds, 0 when unknown.
func startUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
