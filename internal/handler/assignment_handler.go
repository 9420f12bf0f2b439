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

// AssignmentHandler exposes assignment CRUD and the variant creators.
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

func assignmentFilterFromQuery(c *gin.Context) models.AssignmentFilter {
	filter := models.AssignmentFilter{
		Type:           c.Query("type"),
		EvaluationType: c.Query("evaluationType"),
		CreatedBy:      c.Query("createdBy"),
		ClassID:        c.Query("classId"),
		StudentID:      c.Query("studentId"),
		Search:         c.Query("search"),
		SortBy:         c.Query("sortBy"),
		SortOrder:      c.Query("sortOrder"),
	}
	if active := c.Query("active"); active != "" {
		if parsed, err := strconv.ParseBool(active); err == nil {
			filter.Active = &parsed
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter
}

// List godoc
// @Summary List assignments
// @Tags Assignments
// @Produce json
// @Param type query string false "CLASS or INDIVIDUAL"
// @Param evaluationType query string false "Evaluation type"
// @Param active query bool false "Filter by active flag"
// @Param classId query string false "Filter by class scope"
// @Param search query string false "Search by topic"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	filter := assignmentFilterFromQuery(c)
	assignments, total, err := h.assignments.List(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total})
}

// Get godoc
// @Summary Get assignment detail
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	detail, err := h.assignments.Get(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body models.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req models.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.assignments.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Update godoc
// @Summary Update assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.UpdateAssignmentRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id} [put]
func (h *AssignmentHandler) Update(c *gin.Context) {
	var req models.UpdateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.assignments.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete assignment
// @Tags Assignments
// @Param id path string true "Assignment ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	if err := h.assignments.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *AssignmentHandler) createVariant(c *gin.Context, create func(*gin.Context, models.VariantAssignmentRequest) (*models.AssignmentDetail, error)) {
	var req models.VariantAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := create(c, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// CreateReading godoc
// @Summary Create reading assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body models.VariantAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/reading [post]
func (h *AssignmentHandler) CreateReading(c *gin.Context) {
	h.createVariant(c, func(c *gin.Context, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
		return h.assignments.CreateReading(c.Request.Context(), actorFromContext(c), req)
	})
}

// CreateVideo godoc
// @Summary Create video assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body models.VariantAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/video [post]
func (h *AssignmentHandler) CreateVideo(c *gin.Context) {
	h.createVariant(c, func(c *gin.Context, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
		return h.assignments.CreateVideo(c.Request.Context(), actorFromContext(c), req)
	})
}

// CreatePronunciation godoc
// @Summary Create pronunciation assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body models.VariantAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/pronunciation [post]
func (h *AssignmentHandler) CreatePronunciation(c *gin.Context) {
	h.createVariant(c, func(c *gin.Context, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
		return h.assignments.CreatePronunciation(c.Request.Context(), actorFromContext(c), req)
	})
}

// CreateIELTS godoc
// @Summary Create IELTS assignment
// @Tags IELTS
// @Accept json
// @Produce json
// @Param payload body models.VariantAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /ielts/assignments [post]
func (h *AssignmentHandler) CreateIELTS(c *gin.Context) {
	h.createVariant(c, func(c *gin.Context, req models.VariantAssignmentRequest) (*models.AssignmentDetail, error) {
		return h.assignments.CreateIELTS(c.Request.Context(), actorFromContext(c), req)
	})
}

// ListIELTS godoc
// @Summary List IELTS assignments
// @Tags IELTS
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /ielts/assignments [get]
func (h *AssignmentHandler) ListIELTS(c *gin.Context) {
	filter := assignmentFilterFromQuery(c)
	assignments, total, err := h.assignments.ListIELTS(c.Request.Context(), actorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total})
}
