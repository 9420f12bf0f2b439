package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edulink-app/assignment-api/internal/models"
	"github.com/edulink-app/assignment-api/internal/service"
	appErrors "github.com/edulink-app/assignment-api/pkg/errors"
	"github.com/edulink-app/assignment-api/pkg/response"
)

// ProgressHandler exposes submission and progress review endpoints.
type ProgressHandler struct {
	progress *service.ProgressService
}

// NewProgressHandler constructs handler.
func NewProgressHandler(progress *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// Submit godoc
// @Summary Submit answers for an assignment
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.SubmitProgressRequest true "Answers payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/submit-progress [post]
func (h *ProgressHandler) Submit(c *gin.Context) {
	var req models.SubmitProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	status, err := h.progress.Submit(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Status godoc
// @Summary Student standing on an assignment
// @Tags Progress
// @Produce json
// @Param id path string true "Assignment ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /assignments/{id}/progress/{studentId} [get]
func (h *ProgressHandler) Status(c *gin.Context) {
	status, err := h.progress.Status(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// List godoc
// @Summary List progress rows for an assignment
// @Tags Progress
// @Produce json
// @Param id path string true "Assignment ID"
// @Param studentId query string false "Filter by student"
// @Param questionId query string false "Filter by question"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/progress [get]
func (h *ProgressHandler) List(c *gin.Context) {
	filter := models.ProgressFilter{
		AssignmentID: c.Param("id"),
		StudentID:    c.Query("studentId"),
		QuestionID:   c.Query("questionId"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	rows, total, err := h.progress.ListProgress(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total})
}
