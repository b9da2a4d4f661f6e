// Package result defines sandbox execution results and status mapping.
package result

// OutcomeKind classifies the outcome of one sandbox execution.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeCompileFailed  OutcomeKind = "compile_failed"
	OutcomeRuntimeError   OutcomeKind = "runtime_error"
	OutcomeTimeExceeded   OutcomeKind = "time_exceeded"
	OutcomeMemoryExceeded OutcomeKind = "memory_exceeded"
	OutcomeSystemError    OutcomeKind = "system_error"
)

// Status is the submission-level verdict.
type Status string

const (
	StatusAccepted          Status = "accepted"
	StatusRejected          Status = "rejected"
	StatusCompileError      Status = "compile_error"
	StatusRuntimeError      Status = "runtime_error"
	StatusTimeLimitExceeded Status = "time_limit_exceeded"
	StatusSystemError       Status = "system_error"
)

// ProblemLimits are the per-problem execution budgets.
type ProblemLimits struct {
	TimeLimitSec  int64
	MemoryLimitMB int64
}

// TestCase is one declared input/expected-output pair.
// ID 0 marks a case synthesized from the problem sample; it is never
// persisted as a per-test row.
type TestCase struct {
	ID             int64
	Input          string
	ExpectedOutput string
}

// RunResult captures raw sandbox execution data.
type RunResult struct {
	ExitCode   int
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	OomKilled  bool
	TimedOut   bool

	// TermSignal names the signal that killed the process ("SIGSEGV"),
	// empty on a normal exit.
	TermSignal string
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	MemoryKB int64
	Stderr   string
}

// RunOutcome is the classified result of running the artifact on one input.
type RunOutcome struct {
	Outcome    OutcomeKind
	ExitCode   int
	TimeMs     int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	Diagnostic string
}

// TestVerdict is the judged result of one test case.
type TestVerdict struct {
	TestCaseID     int64
	Passed         bool
	ActualOutput   string
	ExpectedOutput string
	TimeMs         int64
	MemoryKB       int64
	Diagnostic     string
	Outcome        OutcomeKind
}

// JudgeReport is the aggregate result for one submission.
// Verdicts preserve test case order. At most one of CompileError and
// RuntimeError is non-empty.
type JudgeReport struct {
	Verdicts     []TestVerdict
	Score        int
	Status       Status
	CompileError string
	RuntimeError string
}
