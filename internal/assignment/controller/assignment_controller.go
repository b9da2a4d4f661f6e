// Package controller exposes assignment endpoints.
package controller

import (
	"strconv"
	"time"

	"classjudge/internal/assignment/repository"
	"classjudge/internal/assignment/service"
	"classjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AssignmentController handles assignment HTTP endpoints.
type AssignmentController struct {
	service *service.Service
}

func NewAssignmentController(svc *service.Service) *AssignmentController {
	return &AssignmentController{service: svc}
}

// Create handles teacher assignment creation.
func (h *AssignmentController) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	assignment, err := h.service.Create(c.Request.Context(), service.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   c.GetInt64("user_id"),
		Active:      req.Active,
		DueAt:       req.DueAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toAssignmentResponse(assignment))
}

// List returns assignments; students only see active ones.
func (h *AssignmentController) List(c *gin.Context) {
	activeOnly := c.GetString("user_role") != "teacher"
	assignments, err := h.service.List(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]AssignmentResponse, 0, len(assignments))
	for i := range assignments {
		items = append(items, toAssignmentResponse(&assignments[i]))
	}
	response.Success(c, items)
}

// Get returns one assignment.
func (h *AssignmentController) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid assignment id")
		return
	}

	var assignment *repository.Assignment
	if c.GetString("user_role") == "teacher" {
		assignment, err = h.service.Get(c.Request.Context(), id)
	} else {
		assignment, err = h.service.GetForStudent(c.Request.Context(), id)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toAssignmentResponse(assignment))
}

// SetActive toggles an assignment's visibility to students.
func (h *AssignmentController) SetActive(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid assignment id")
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if err := h.service.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// CreateRequest defines the assignment creation payload.
type CreateRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	DueAt       *time.Time `json:"due_at"`
}

// SetActiveRequest defines the visibility toggle payload.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// AssignmentResponse defines the assignment payload.
type AssignmentResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	Active      bool       `json:"active"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toAssignmentResponse(assignment *repository.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:          assignment.ID,
		Title:       assignment.Title,
		Description: assignment.Description,
		CreatedBy:   assignment.CreatedBy,
		Active:      assignment.Active,
		DueAt:       assignment.DueAt,
		CreatedAt:   assignment.CreatedAt,
	}
}
