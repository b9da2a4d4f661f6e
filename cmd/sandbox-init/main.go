//go:build linux

// sandbox-init is the in-sandbox bootstrap helper. The judge engine starts it
// in fresh namespaces, feeds one launch payload on stdin, and the helper
// finishes isolation from the inside before exec'ing the judged command.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// launchPayload mirrors what the engine marshals onto the helper's stdin.
// Field names are the wire contract and must not change independently.
type launchPayload struct {
	RunSpec       taskSpec         `json:"RunSpec"`
	Isolation     isolationProfile `json:"Isolation"`
	EnableSeccomp bool             `json:"EnableSeccomp"`
	EnableNs      bool             `json:"EnableNs"`
}

type taskSpec struct {
	SubmissionID string        `json:"SubmissionID"`
	TaskID       string        `json:"TaskID"`
	WorkDir      string        `json:"WorkDir"`
	Cmd          []string      `json:"Cmd"`
	Env          []string      `json:"Env"`
	StdinPath    string        `json:"StdinPath"`
	StdoutPath   string        `json:"StdoutPath"`
	StderrPath   string        `json:"StderrPath"`
	BindMounts   []bindMount   `json:"BindMounts"`
	Limits       resourceLimit `json:"Limits"`
}

type bindMount struct {
	Source   string `json:"Source"`
	Target   string `json:"Target"`
	ReadOnly bool   `json:"ReadOnly"`
}

type resourceLimit struct {
	CPUTimeMs  int64 `json:"CPUTimeMs"`
	WallTimeMs int64 `json:"WallTimeMs"`
	MemoryMB   int64 `json:"MemoryMB"`
	StackMB    int64 `json:"StackMB"`
	OutputMB   int64 `json:"OutputMB"`
	PIDs       int64 `json:"PIDs"`
}

type isolationProfile struct {
	RootFS         string `json:"RootFS"`
	SeccompProfile string `json:"SeccompProfile"`
	DisableNetwork bool   `json:"DisableNetwork"`
}

func main() {
	if err := bootstrap(os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func bootstrap(stdin io.Reader) error {
	var payload launchPayload
	if err := json.NewDecoder(stdin).Decode(&payload); err != nil {
		return fmt.Errorf("decode launch payload: %w", err)
	}
	task := payload.RunSpec
	if len(task.Cmd) == 0 {
		return errors.New("launch payload has no command")
	}
	if task.WorkDir == "" {
		return errors.New("launch payload has no work dir")
	}

	if err := enterFilesystem(payload); err != nil {
		return err
	}
	if err := os.Chdir(task.WorkDir); err != nil {
		return fmt.Errorf("enter workdir: %w", err)
	}
	if err := applyProcessLimits(task.Limits); err != nil {
		return err
	}
	if err := wireStdio(task); err != nil {
		return err
	}
	// The syscall filter goes on last so the setup above is not constrained
	// by it.
	if payload.EnableSeccomp && payload.Isolation.SeccompProfile != "" {
		if err := installSyscallFilter(payload.Isolation.SeccompProfile); err != nil {
			return err
		}
	}

	env := task.Env
	if len(env) == 0 {
		env = []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
	}
	os.Clearenv()
	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("set env %s: %w", name, err)
		}
	}

	argv0, err := exec.LookPath(task.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", task.Cmd[0], err)
	}
	return unix.Exec(argv0, task.Cmd, env)
}

// enterFilesystem prepares bind mounts and pivots into the rootfs. Without
// namespaces any filesystem isolation request is refused outright instead of
// silently mutating the host mount table.
func enterFilesystem(payload launchPayload) error {
	if !payload.EnableNs {
		if payload.Isolation.RootFS != "" || len(payload.RunSpec.BindMounts) > 0 {
			return errors.New("rootfs and bind mounts require namespaces")
		}
		return nil
	}

	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make mounts private: %w", err)
	}

	rootfs := payload.Isolation.RootFS
	for _, mnt := range payload.RunSpec.BindMounts {
		if err := placeBindMount(rootfs, mnt); err != nil {
			return err
		}
	}
	if rootfs == "" {
		return nil
	}

	procDir := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(procDir, 0755); err != nil {
		return fmt.Errorf("mkdir proc: %w", err)
	}
	if err := unix.Mount("proc", procDir, "proc", 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount proc: %w", err)
	}
	if err := unix.Chroot(rootfs); err != nil {
		return fmt.Errorf("chroot %s: %w", rootfs, err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir new root: %w", err)
	}
	return nil
}

func placeBindMount(rootfs string, mnt bindMount) error {
	if mnt.Source == "" || mnt.Target == "" {
		return errors.New("bind mount needs both source and target")
	}
	target := mnt.Target
	if rootfs != "" {
		target = filepath.Join(rootfs, mnt.Target)
	}

	srcInfo, err := os.Stat(mnt.Source)
	if err != nil {
		return fmt.Errorf("stat bind source: %w", err)
	}
	if srcInfo.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("prepare bind target: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("prepare bind target dir: %w", err)
		}
		f, err := os.OpenFile(target, os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("prepare bind target file: %w", err)
		}
		_ = f.Close()
	}

	if err := unix.Mount(mnt.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s: %w", mnt.Source, err)
	}
	if mnt.ReadOnly {
		if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
			return fmt.Errorf("remount %s readonly: %w", target, err)
		}
	}
	return nil
}

// applyProcessLimits installs rlimits the kernel enforces directly. Memory is
// deliberately absent here: the engine accounts it through cgroups, and an
// RLIMIT_AS cap would misfire on mmap-heavy runtimes.
func applyProcessLimits(limits resourceLimit) error {
	set := func(resource int, value uint64, name string) error {
		if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value}); err != nil {
			return fmt.Errorf("rlimit %s: %w", name, err)
		}
		return nil
	}
	if limits.CPUTimeMs > 0 {
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := set(unix.RLIMIT_CPU, seconds, "cpu"); err != nil {
			return err
		}
	}
	if limits.OutputMB > 0 {
		if err := set(unix.RLIMIT_FSIZE, uint64(limits.OutputMB)<<20, "fsize"); err != nil {
			return err
		}
	}
	if limits.StackMB > 0 {
		if err := set(unix.RLIMIT_STACK, uint64(limits.StackMB)<<20, "stack"); err != nil {
			return err
		}
	}
	if limits.PIDs > 0 {
		if err := set(unix.RLIMIT_NPROC, uint64(limits.PIDs), "nproc"); err != nil {
			return err
		}
	}
	return nil
}

// wireStdio redirects fds 0-2 to the task's files. Unset streams go to
// /dev/null so the judged program never inherits the engine's pipes.
func wireStdio(task taskSpec) error {
	redirect := func(path string, fd int, flags int) error {
		if path == "" {
			path = "/dev/null"
		}
		f, err := os.OpenFile(path, flags, 0644)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		if err := unix.Dup2(int(f.Fd()), fd); err != nil {
			_ = f.Close()
			return fmt.Errorf("dup fd %d: %w", fd, err)
		}
		return f.Close()
	}
	if err := redirect(task.StdinPath, 0, os.O_RDONLY); err != nil {
		return err
	}
	if err := redirect(task.StdoutPath, 1, os.O_CREATE|os.O_WRONLY|os.O_TRUNC); err != nil {
		return err
	}
	return redirect(task.StderrPath, 2, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

type filterDocument struct {
	DefaultAction string       `json:"defaultAction"`
	Syscalls      []filterRule `json:"syscalls"`
}

type filterRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func installSyscallFilter(profilePath string) error {
	raw, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	var doc filterDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}

	filter, err := buildSyscallFilter(doc)
	if err != nil {
		return err
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("no_new_privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

// buildSyscallFilter assembles the filter without loading it. Profiles list
// syscall names across kernels and architectures; a name this libc does not
// know cannot be invoked here either, so it is skipped rather than rejected.
func buildSyscallFilter(doc filterDocument) (*seccomp.ScmpFilter, error) {
	defaultAction, err := filterAction(doc.DefaultAction)
	if err != nil {
		return nil, err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return nil, fmt.Errorf("new seccomp filter: %w", err)
	}
	for _, rule := range doc.Syscalls {
		action, err := filterAction(rule.Action)
		if err != nil {
			filter.Release()
			return nil, err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				continue
			}
			if err := filter.AddRuleExact(call, action); err != nil {
				filter.Release()
				return nil, fmt.Errorf("seccomp rule %s: %w", name, err)
			}
		}
	}
	return filter, nil
}

func filterAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action %q", action)
	}
}
