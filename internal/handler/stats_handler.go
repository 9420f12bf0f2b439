package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulink-app/assignment-api/internal/middleware"
	"github.com/edulink-app/assignment-api/internal/service"
	"github.com/edulink-app/assignment-api/pkg/response"
)

// StatsHandler exposes the aggregate statistics endpoints. Responses carry a
// cache_hit meta flag so clients can tell cached reads from fresh ones.
type StatsHandler struct {
	stats *service.StatsService
}

// NewStatsHandler constructs handler.
func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Assignment godoc
// @Summary Assignment statistics
// @Tags Statistics
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id}/stats [get]
func (h *StatsHandler) Assignment(c *gin.Context) {
	view, hit, err := h.stats.AssignmentStats(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// Student godoc
// @Summary Student statistics
// @Tags Statistics
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/stats [get]
func (h *StatsHandler) Student(c *gin.Context) {
	view, hit, err := h.stats.StudentStats(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// Class godoc
// @Summary Class statistics
// @Tags Statistics
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/stats [get]
func (h *StatsHandler) Class(c *gin.Context) {
	view, hit, err := h.stats.ClassStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// School godoc
// @Summary School-wide statistics
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/school [get]
func (h *StatsHandler) School(c *gin.Context) {
	stats, hit, err := h.stats.SchoolStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}
