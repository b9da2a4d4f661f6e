package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"classjudge/internal/judge/sandbox/profile"
	"classjudge/internal/judge/sandbox/result"
	"classjudge/internal/judge/sandbox/spec"
)

type fakeEngine struct {
	res   result.RunResult
	err   error
	specs []spec.RunSpec
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.specs = append(f.specs, runSpec)
	return f.res, f.err
}

func (f *fakeEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return nil
}

func cLang() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:             "c",
		SourceFile:     "main.c",
		BinaryFile:     "main",
		CompileEnabled: true,
		CompileCmdTpl:  "gcc -std=c11 -O2 -o {bin} {src} {extraFlags}",
		RunCmdTpl:      "{bin}",
	}
}

func compileProfile() profile.TaskProfile {
	return profile.TaskProfile{
		LanguageID: "c",
		TaskType:   profile.TaskTypeCompile,
		DefaultLimits: spec.ResourceLimit{
			CPUTimeMs: 10000, WallTimeMs: 20000, MemoryMB: 512,
		},
	}
}

func runProfile() profile.TaskProfile {
	return profile.TaskProfile{
		LanguageID: "c",
		TaskType:   profile.TaskTypeRun,
		DefaultLimits: spec.ResourceLimit{
			CPUTimeMs: 1000, WallTimeMs: 2000, MemoryMB: 256, OutputMB: 16,
		},
	}
}

func writeTempSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "submitted.c")
	if err := os.WriteFile(path, []byte("int main(void){return 0;}"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestCompileBuildsCommandAndMounts(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{ExitCode: 0}}
	r := NewRunner(eng)
	workDir := filepath.Join(t.TempDir(), "compile")

	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID:      "s1",
		Language:          cLang(),
		Profile:           compileProfile(),
		WorkDir:           workDir,
		SourcePath:        writeTempSource(t),
		ExtraCompileFlags: []string{"-lm"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !res.OK {
		t.Fatalf("compile result = %+v", res)
	}

	if len(eng.specs) != 1 {
		t.Fatalf("engine called %d times", len(eng.specs))
	}
	got := eng.specs[0]
	wantCmd := []string{"gcc", "-std=c11", "-O2", "-o", "/work/main", "/work/main.c", "-lm"}
	if strings.Join(got.Cmd, " ") != strings.Join(wantCmd, " ") {
		t.Fatalf("cmd = %v", got.Cmd)
	}
	if got.WorkDir != "/work" {
		t.Fatalf("workdir = %q", got.WorkDir)
	}
	if len(got.BindMounts) != 1 || got.BindMounts[0].Source != workDir {
		t.Fatalf("mounts = %+v", got.BindMounts)
	}
	// The source must be staged under the language's expected name.
	if _, err := os.Stat(filepath.Join(workDir, "main.c")); err != nil {
		t.Fatalf("staged source: %v", err)
	}
}

func TestCompileFailureIsNotAnError(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{ExitCode: 1, Stderr: "main.c:1: error"}}
	r := NewRunner(eng)

	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID: "s1",
		Language:     cLang(),
		Profile:      compileProfile(),
		WorkDir:      t.TempDir(),
		SourcePath:   writeTempSource(t),
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.OK {
		t.Fatal("non-zero compiler exit must not be OK")
	}
	if res.Stderr != "main.c:1: error" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestCompileSkippedForInterpretedLanguage(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng)
	lang := cLang()
	lang.CompileEnabled = false

	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID: "s1",
		Language:     lang,
		Profile:      compileProfile(),
		WorkDir:      t.TempDir(),
		SourcePath:   writeTempSource(t),
	})
	if err != nil || !res.OK {
		t.Fatalf("res = %+v err = %v", res, err)
	}
	if len(eng.specs) != 0 {
		t.Fatal("engine must not run when compilation is disabled")
	}
}

func TestRunClassification(t *testing.T) {
	cases := []struct {
		name string
		res  result.RunResult
		want result.OutcomeKind
	}{
		{"success", result.RunResult{ExitCode: 0, TimeMs: 10}, result.OutcomeSuccess},
		{"watchdog kill", result.RunResult{TimedOut: true}, result.OutcomeTimeExceeded},
		{"cpu over budget", result.RunResult{ExitCode: 0, TimeMs: 1500}, result.OutcomeTimeExceeded},
		{"oom killed", result.RunResult{ExitCode: 137, OomKilled: true}, result.OutcomeMemoryExceeded},
		{"memory over budget", result.RunResult{ExitCode: 0, MemoryKB: 300 * 1024}, result.OutcomeMemoryExceeded},
		{"nonzero exit", result.RunResult{ExitCode: 11, Stderr: "segfault"}, result.OutcomeRuntimeError},
		{"segfault kill", result.RunResult{ExitCode: -1, TermSignal: "SIGSEGV", TimeMs: 5}, result.OutcomeRuntimeError},
		{"abort kill", result.RunResult{ExitCode: -1, TermSignal: "SIGABRT", TimeMs: 5}, result.OutcomeRuntimeError},
		{"cpu rlimit kill", result.RunResult{ExitCode: -1, TermSignal: "SIGXCPU"}, result.OutcomeTimeExceeded},
		{"output over budget", result.RunResult{ExitCode: 0, OutputKB: 17 * 1024}, result.OutcomeRuntimeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{res: tc.res}
			r := NewRunner(eng)
			input := filepath.Join(t.TempDir(), "input.txt")
			if err := os.WriteFile(input, []byte("1 2"), 0644); err != nil {
				t.Fatalf("write input: %v", err)
			}

			outcome, err := r.Run(context.Background(), RunRequest{
				SubmissionID: "s1",
				TaskID:       "t1",
				Language:     cLang(),
				Profile:      runProfile(),
				WorkDir:      t.TempDir(),
				InputPath:    input,
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if outcome.Outcome != tc.want {
				t.Fatalf("outcome = %s, want %s", outcome.Outcome, tc.want)
			}
		})
	}
}

func TestSignalDeathDiagnosticNamesSignal(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{ExitCode: -1, TermSignal: "SIGSEGV"}}
	r := NewRunner(eng)
	input := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(input, []byte("1 2"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	outcome, err := r.Run(context.Background(), RunRequest{
		SubmissionID: "s1",
		TaskID:       "t1",
		Language:     cLang(),
		Profile:      runProfile(),
		WorkDir:      t.TempDir(),
		InputPath:    input,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Outcome != result.OutcomeRuntimeError {
		t.Fatalf("outcome = %s, want %s", outcome.Outcome, result.OutcomeRuntimeError)
	}
	if outcome.Diagnostic != "killed by SIGSEGV" {
		t.Fatalf("diagnostic = %q", outcome.Diagnostic)
	}
}

func TestLimitMultipliers(t *testing.T) {
	lang := cLang()
	lang.TimeMultiplier = 2
	lang.MemoryMultiplier = 1.5

	got := applyLimits(spec.ResourceLimit{CPUTimeMs: 1000, MemoryMB: 100}, runProfile().DefaultLimits, lang)
	if got.CPUTimeMs != 2000 {
		t.Fatalf("cpu = %d, want 2000", got.CPUTimeMs)
	}
	if got.MemoryMB != 150 {
		t.Fatalf("memory = %d, want 150", got.MemoryMB)
	}
}

func TestBuildCommandRejectsEmptyTemplate(t *testing.T) {
	if _, err := buildCommand("   ", cLang(), nil); err == nil {
		t.Fatal("expected error for empty template")
	}
}
