package handler

import (
	"net/http"

	"github.com/SergeiKhy/blog-analytics/internal/middleware"
	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ViewHandler struct {
	tracker  service.ViewTracker
	counter  service.ViewCounterService
	resolver service.IdentityResolver
	logger   *zap.Logger
}

func NewViewHandler(
	tracker service.ViewTracker,
	counter service.ViewCounterService,
	resolver service.IdentityResolver,
	logger *zap.Logger,
) *ViewHandler {
	return &ViewHandler{
		tracker:  tracker,
		counter:  counter,
		resolver: resolver,
		logger:   logger,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ViewCountResponse struct {
	ViewableType string `json:"viewable_type"`
	ViewableID   int64  `json:"viewable_id"`
	Views        int64  `json:"views"`
}

// Track godoc
// @Summary Track a page view
// @Description Tracking beacon for a blog landing page or a post. Never fails because of tracking errors
// @Tags views
// @Param type path string true "blog or post"
// @Param id path int true "Viewable ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/views/{type}/{id} [post]
func (h *ViewHandler) Track(c *gin.Context) {
	viewable, ok := h.viewable(c)
	if !ok {
		return
	}

	result := h.tracker.Track(c.Request.Context(), viewable, middleware.RequestInfo(c))
	h.logger.Debug("View tracked",
		zap.String("viewable", viewable.String()),
		zap.String("result", result.String()),
	)

	c.Status(http.StatusNoContent)
}

// Count godoc
// @Summary Get the fast view counter
// @Description Approximate total views served from Redis, recomputed from page_views on a miss
// @Tags views
// @Produce json
// @Param type path string true "blog or post"
// @Param id path int true "Viewable ID"
// @Success 200 {object} ViewCountResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/views/{type}/{id} [get]
func (h *ViewHandler) Count(c *gin.Context) {
	viewable, ok := h.viewable(c)
	if !ok {
		return
	}

	count, err := h.counter.Count(c.Request.Context(), viewable)
	if err != nil {
		h.logger.Error("Failed to count views", zap.String("viewable", viewable.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to count views",
		})
		return
	}

	c.JSON(http.StatusOK, ViewCountResponse{
		ViewableType: viewable.Type.String(),
		ViewableID:   viewable.ID,
		Views:        count,
	})
}

// Identity godoc
// @Summary Resolve the current visitor identity
// @Tags views
// @Produce json
// @Success 200 {object} models.Identity
// @Router /api/v1/identity [get]
func (h *ViewHandler) Identity(c *gin.Context) {
	c.JSON(http.StatusOK, h.resolver.Resolve(c.Request.Context(), middleware.RequestInfo(c)))
}

func (h *ViewHandler) viewable(c *gin.Context) (models.Viewable, bool) {
	viewable, err := models.ParseViewable(c.Param("type"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_viewable",
			Message: err.Error(),
		})
		return models.Viewable{}, false
	}
	return viewable, true
}
