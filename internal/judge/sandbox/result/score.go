package result

// Score converts a pass count into a 0..100 integer score.
// The score rounds down and an empty test set scores zero.
func Score(passed, total int) int {
	if total <= 0 {
		return 0
	}
	if passed < 0 {
		passed = 0
	}
	if passed > total {
		passed = total
	}
	return 100 * passed / total
}

// CompileFailedReport builds the report for a submission that never ran:
// zero verdicts, zero score, the compiler diagnostic attached.
func CompileFailedReport(compileStderr string) JudgeReport {
	return JudgeReport{
		Verdicts:     []TestVerdict{},
		Score:        0,
		Status:       StatusCompileError,
		CompileError: compileStderr,
	}
}

// SystemFailureReport builds the report for a submission the judge itself
// could not complete.
func SystemFailureReport(diagnostic string) JudgeReport {
	return JudgeReport{
		Verdicts:     []TestVerdict{},
		Score:        0,
		Status:       StatusSystemError,
		RuntimeError: diagnostic,
	}
}

// BuildReport aggregates per-test verdicts into the final report.
//
// Status precedence, most severe first: system error, runtime error
// (memory overruns count as runtime failures), time limit exceeded. A clean
// run is accepted only on a perfect score; anything else is rejected.
func BuildReport(verdicts []TestVerdict) JudgeReport {
	passed := 0
	sawSystem := false
	sawTime := false
	systemDiag := ""
	runtimeDiag := ""
	sawRuntime := false

	for _, v := range verdicts {
		if v.Passed {
			passed++
			continue
		}
		switch v.Outcome {
		case OutcomeSystemError:
			if !sawSystem {
				systemDiag = v.Diagnostic
				sawSystem = true
			}
		case OutcomeTimeExceeded:
			sawTime = true
		case OutcomeRuntimeError, OutcomeMemoryExceeded:
			if !sawRuntime {
				runtimeDiag = v.Diagnostic
				sawRuntime = true
			}
		}
	}

	score := Score(passed, len(verdicts))

	status := StatusRejected
	switch {
	case sawSystem:
		status = StatusSystemError
	case sawRuntime:
		status = StatusRuntimeError
	case sawTime:
		status = StatusTimeLimitExceeded
	case score == 100 && len(verdicts) > 0:
		status = StatusAccepted
	}

	report := JudgeReport{
		Verdicts: verdicts,
		Score:    score,
		Status:   status,
	}
	// The report carries the diagnostic of the first verdict that set the
	// status, so a system error is never reported without its cause.
	switch {
	case sawSystem:
		report.RuntimeError = systemDiag
	case sawRuntime:
		report.RuntimeError = runtimeDiag
	}
	return report
}
