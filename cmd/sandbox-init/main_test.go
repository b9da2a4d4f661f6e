//go:build linux

package main

import "testing"

func TestBuildSyscallFilterResolvesNames(t *testing.T) {
	doc := filterDocument{
		DefaultAction: "SCMP_ACT_KILL_PROCESS",
		Syscalls: []filterRule{
			{Names: []string{"read", "write", "exit_group"}, Action: "SCMP_ACT_ALLOW"},
			// Names this kernel does not know are skipped, not fatal.
			{Names: []string{"no_such_syscall"}, Action: "SCMP_ACT_ALLOW"},
		},
	}
	filter, err := buildSyscallFilter(doc)
	if err != nil {
		t.Fatalf("build filter: %v", err)
	}
	filter.Release()
}

func TestBuildSyscallFilterRejectsUnknownAction(t *testing.T) {
	doc := filterDocument{
		DefaultAction: "SCMP_ACT_ALLOW",
		Syscalls:      []filterRule{{Names: []string{"ptrace"}, Action: "SCMP_ACT_TRACE"}},
	}
	if _, err := buildSyscallFilter(doc); err == nil {
		t.Fatal("expected error for unsupported action")
	}
}
