// Package controller exposes submission endpoints.
package controller

import (
	"strconv"
	"time"

	"classjudge/internal/submission/repository"
	"classjudge/internal/submission/service"
	"classjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	service *service.Service
}

func NewSubmissionController(svc *service.Service) *SubmissionController {
	return &SubmissionController{service: svc}
}

// Submit judges a student's code against a problem.
func (h *SubmissionController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.service.Submit(c.Request.Context(), service.SubmitInput{
		UserID:    c.GetInt64("user_id"),
		ProblemID: req.ProblemID,
		Code:      req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toSubmissionResponse(result))
}

// Get returns one submission with test results and feedback.
func (h *SubmissionController) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	isTeacher := c.GetString("user_role") == "teacher"
	result, err := h.service.Get(c.Request.Context(), id, c.GetInt64("user_id"), isTeacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toSubmissionResponse(result))
}

// ListMine returns the caller's submissions, optionally filtered by problem.
func (h *SubmissionController) ListMine(c *gin.Context) {
	var problemID int64
	if raw := c.Query("problem_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			response.BadRequest(c, "Invalid problem id")
			return
		}
		problemID = parsed
	}
	submissions, err := h.service.ListMine(c.Request.Context(), c.GetInt64("user_id"), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]SubmissionSummary, 0, len(submissions))
	for i := range submissions {
		items = append(items, toSubmissionSummary(&submissions[i]))
	}
	response.Success(c, items)
}

// SubmitRequest defines the submission payload.
type SubmitRequest struct {
	ProblemID int64  `json:"problem_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// TestResultResponse defines one per-test verdict payload.
type TestResultResponse struct {
	TestCaseID int64  `json:"test_case_id"`
	Passed     bool   `json:"passed"`
	Outcome    string `json:"outcome"`
	TimeMs     int64  `json:"time_ms"`
	MemoryKB   int64  `json:"memory_kb,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// FeedbackResponse defines the advisory feedback payload.
type FeedbackResponse struct {
	Available bool   `json:"available"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SubmissionResponse defines the full submission payload.
type SubmissionResponse struct {
	ID           int64                `json:"id"`
	ProblemID    int64                `json:"problem_id"`
	Status       string               `json:"status"`
	Score        int                  `json:"score"`
	CompileError string               `json:"compile_error,omitempty"`
	RuntimeError string               `json:"runtime_error,omitempty"`
	TestResults  []TestResultResponse `json:"test_results"`
	Feedback     FeedbackResponse     `json:"feedback"`
	CreatedAt    time.Time            `json:"created_at"`
}

// SubmissionSummary defines the list item payload.
type SubmissionSummary struct {
	ID        int64     `json:"id"`
	ProblemID int64     `json:"problem_id"`
	Status    string    `json:"status"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

func toSubmissionResponse(result service.SubmitResult) SubmissionResponse {
	testResults := make([]TestResultResponse, 0, len(result.TestResults))
	for _, tr := range result.TestResults {
		testResults = append(testResults, TestResultResponse{
			TestCaseID: tr.TestCaseID,
			Passed:     tr.Passed,
			Outcome:    tr.Outcome,
			TimeMs:     tr.TimeMs,
			MemoryKB:   tr.MemoryKB,
			Diagnostic: tr.Diagnostic,
		})
	}
	return SubmissionResponse{
		ID:           result.Submission.ID,
		ProblemID:    result.Submission.ProblemID,
		Status:       result.Submission.Status,
		Score:        result.Submission.Score,
		CompileError: result.Submission.CompileError,
		RuntimeError: result.Submission.RuntimeError,
		TestResults:  testResults,
		Feedback: FeedbackResponse{
			Available: result.Feedback.Available,
			Text:      result.Feedback.Text,
			Reason:    result.Feedback.Reason,
		},
		CreatedAt: result.Submission.CreatedAt,
	}
}

func toSubmissionSummary(submission *repository.Submission) SubmissionSummary {
	return SubmissionSummary{
		ID:        submission.ID,
		ProblemID: submission.ProblemID,
		Status:    submission.Status,
		Score:     submission.Score,
		CreatedAt: submission.CreatedAt,
	}
}
