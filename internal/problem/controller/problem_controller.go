// Package controller exposes problem endpoints.
package controller

import (
	"strconv"

	"classjudge/internal/problem/repository"
	"classjudge/internal/problem/service"
	"classjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem HTTP endpoints.
type ProblemController struct {
	service *service.Service
}

func NewProblemController(svc *service.Service) *ProblemController {
	return &ProblemController{service: svc}
}

// Create handles teacher problem creation.
func (h *ProblemController) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	tests := make([]service.TestCaseInput, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		tests = append(tests, service.TestCaseInput{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	problem, err := h.service.Create(c.Request.Context(), service.CreateInput{
		AssignmentID:  req.AssignmentID,
		Title:         req.Title,
		Statement:     req.Statement,
		InputFormat:   req.InputFormat,
		OutputFormat:  req.OutputFormat,
		SampleInput:   req.SampleInput,
		SampleOutput:  req.SampleOutput,
		Difficulty:    req.Difficulty,
		LanguageID:    req.LanguageID,
		TimeLimitSec:  req.TimeLimitSec,
		MemoryLimitMB: req.MemoryLimitMB,
		TestCases:     tests,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toProblemResponse(problem))
}

// Get returns one problem. Declared test cases are never exposed here.
func (h *ProblemController) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	problem, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toProblemResponse(problem))
}

// ListByAssignment returns all problems of one assignment.
func (h *ProblemController) ListByAssignment(c *gin.Context) {
	assignmentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || assignmentID <= 0 {
		response.BadRequest(c, "Invalid assignment id")
		return
	}
	problems, err := h.service.ListByAssignment(c.Request.Context(), assignmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]ProblemResponse, 0, len(problems))
	for i := range problems {
		items = append(items, toProblemResponse(&problems[i]))
	}
	response.Success(c, items)
}

// ReplaceTestCases swaps a problem's declared test cases.
func (h *ProblemController) ReplaceTestCases(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	var req ReplaceTestCasesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	tests := make([]service.TestCaseInput, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		tests = append(tests, service.TestCaseInput{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}
	if err := h.service.ReplaceTestCases(c.Request.Context(), id, tests); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// TestCasePayload is one declared test case in requests.
type TestCasePayload struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output" binding:"required"`
}

// CreateRequest defines the problem creation payload.
type CreateRequest struct {
	AssignmentID  int64             `json:"assignment_id" binding:"required"`
	Title         string            `json:"title" binding:"required"`
	Statement     string            `json:"statement" binding:"required"`
	InputFormat   string            `json:"input_format"`
	OutputFormat  string            `json:"output_format"`
	SampleInput   string            `json:"sample_input"`
	SampleOutput  string            `json:"sample_output"`
	Difficulty    string            `json:"difficulty"`
	LanguageID    string            `json:"language_id"`
	TimeLimitSec  int64             `json:"time_limit_sec"`
	MemoryLimitMB int64             `json:"memory_limit_mb"`
	TestCases     []TestCasePayload `json:"test_cases"`
}

// ReplaceTestCasesRequest defines the test case replacement payload.
type ReplaceTestCasesRequest struct {
	TestCases []TestCasePayload `json:"test_cases" binding:"required"`
}

// ProblemResponse defines the problem payload.
type ProblemResponse struct {
	ID            int64  `json:"id"`
	AssignmentID  int64  `json:"assignment_id"`
	Title         string `json:"title"`
	Statement     string `json:"statement"`
	InputFormat   string `json:"input_format,omitempty"`
	OutputFormat  string `json:"output_format,omitempty"`
	SampleInput   string `json:"sample_input,omitempty"`
	SampleOutput  string `json:"sample_output,omitempty"`
	Difficulty    string `json:"difficulty"`
	LanguageID    string `json:"language_id"`
	TimeLimitSec  int64  `json:"time_limit_sec"`
	MemoryLimitMB int64  `json:"memory_limit_mb"`
}

func toProblemResponse(problem *repository.Problem) ProblemResponse {
	return ProblemResponse{
		ID:            problem.ID,
		AssignmentID:  problem.AssignmentID,
		Title:         problem.Title,
		Statement:     problem.Statement,
		InputFormat:   problem.InputFormat,
		OutputFormat:  problem.OutputFormat,
		SampleInput:   problem.SampleInput,
		SampleOutput:  problem.SampleOutput,
		Difficulty:    problem.Difficulty,
		LanguageID:    problem.LanguageID,
		TimeLimitSec:  problem.TimeLimitSec,
		MemoryLimitMB: problem.MemoryLimitMB,
	}
}
