//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"classjudge/internal/judge/sandbox/spec"
)

// taskCgroup is one cgroup v2 leaf for a single compile or run task.
// A nil taskCgroup is valid and means cgroup accounting is disabled.
type taskCgroup struct {
	path string
}

func openTaskCgroup(root, submissionID, taskID string) (*taskCgroup, error) {
	if root == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	leaf := fmt.Sprintf("%s-%d", taskID, time.Now().UnixNano())
	path := filepath.Join(root, submissionID, leaf)
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", path, err)
	}
	return &taskCgroup{path: path}, nil
}

func (c *taskCgroup) applyLimits(limits spec.ResourceLimit) error {
	pids := "max"
	if limits.PIDs > 0 {
		pids = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := c.write("pids.max", pids); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		if err := c.write("memory.max", strconv.FormatInt(limits.MemoryMB<<20, 10)); err != nil {
			return err
		}
	}
	// One full CPU; the per-task CPU budget itself is enforced via rlimit
	// and the wall watchdog.
	return c.write("cpu.max", "max 100000")
}

func (c *taskCgroup) addProcess(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return c.write("cgroup.procs", strconv.Itoa(pid))
}

func (c *taskCgroup) remove() {
	if c == nil {
		return
	}
	_ = os.RemoveAll(c.path)
}

// oomKilled reports whether the kernel's oom killer fired inside this
// cgroup. Best effort: a missing or unreadable memory.events reads as no.
func (c *taskCgroup) oomKilled() bool {
	if c == nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(c.path, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			count, _ := strconv.ParseInt(fields[1], 10, 64)
			return count > 0
		}
	}
	return false
}

// peakMemoryKB prefers the cgroup's memory.peak and falls back to the
// process rusage when accounting is off or the file is absent.
func (c *taskCgroup) peakMemoryKB(state *os.ProcessState) int64 {
	if c != nil {
		data, err := os.ReadFile(filepath.Join(c.path, "memory.peak"))
		if err == nil {
			if peak, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil && peak > 0 {
				return peak / 1024
			}
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func (c *taskCgroup) write(name, value string) error {
	return os.WriteFile(filepath.Join(c.path, name), []byte(value), 0640)
}

// killCgroupAt writes cgroup.kill for a previously registered leaf. It takes
// a raw path because KillSubmission operates on the registry snapshot.
func killCgroupAt(path string) error {
	killFile := filepath.Join(path, "cgroup.kill")
	if _, err := os.Stat(killFile); err != nil {
		return err
	}
	return os.WriteFile(killFile, []byte("1"), 0600)
}
