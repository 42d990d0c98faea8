package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/SergeiKhy/blog-analytics/internal/middleware"
	"github.com/SergeiKhy/blog-analytics/internal/models"
	"github.com/SergeiKhy/blog-analytics/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StatsHandler struct {
	stats     service.StatsService
	processor service.ViewProcessor
	logger    *zap.Logger
}

func NewStatsHandler(stats service.StatsService, processor service.ViewProcessor, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		stats:     stats,
		processor: processor,
		logger:    logger,
	}
}

// ListResponse обёртка для табличных отчётов
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

// Blogs godoc
// @Summary Views per blog
// @Description Landing page and post views per blog within a range
// @Tags stats
// @Produce json
// @Param range query string false "today|week|month|year|all" default(week)
// @Param blogger_id query int false "Owner filter"
// @Param blog_id query int false "Blog filter"
// @Param sort query string false "views_desc|views_asc|name_asc|name_desc"
// @Param limit query int false "Row limit"
// @Success 200 {object} ListResponse[models.BlogStats]
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/stats/blogs [get]
func (h *StatsHandler) Blogs(c *gin.Context) {
	respond(c, h, "blogs", h.stats.BlogViews)
}

// Posts godoc
// @Summary Views per post
// @Tags stats
// @Produce json
// @Success 200 {object} ListResponse[models.PostStats]
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/stats/posts [get]
func (h *StatsHandler) Posts(c *gin.Context) {
	respond(c, h, "posts", h.stats.PostViews)
}

// Visitors godoc
// @Summary Views per visitor
// @Description Groups by visitor_id or fingerprint (group param), label is the user name, newsletter email or raw key
// @Tags stats
// @Produce json
// @Param group query string false "visitor_id|fingerprint"
// @Param visitor_type query string false "all|users|guests"
// @Param sort query string false "views_desc|views_asc|label_asc|label_desc"
// @Success 200 {object} ListResponse[models.VisitorStats]
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/stats/visitors [get]
func (h *StatsHandler) Visitors(c *gin.Context) {
	respond(c, h, "visitors", h.stats.VisitorViews)
}

// Bots godoc
// @Summary Lifetime bot hits per user agent
// @Tags stats
// @Produce json
// @Success 200 {object} ListResponse[models.HitStats]
// @Router /api/v1/stats/bots [get]
func (h *StatsHandler) Bots(c *gin.Context) {
	respond(c, h, "bots", h.stats.BotViews)
}

// Anonymous godoc
// @Summary Lifetime anonymous hits per user agent
// @Tags stats
// @Produce json
// @Success 200 {object} ListResponse[models.HitStats]
// @Router /api/v1/stats/anonymous [get]
func (h *StatsHandler) Anonymous(c *gin.Context) {
	respond(c, h, "anonymous", h.stats.AnonymousViews)
}

// Queue godoc
// @Summary Ingestion queue state
// @Tags stats
// @Produce json
// @Success 200 {object} service.QueueStats
// @Router /api/v1/stats/queue [get]
func (h *StatsHandler) Queue(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Stats(c.Request.Context()))
}

func respond[T any](c *gin.Context, h *StatsHandler, report string, query func(context.Context, models.StatsCriteria) ([]T, error)) {
	criteria, err := models.ParseStatsCriteria(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_criteria",
			Message: err.Error(),
		})
		return
	}

	rows, err := query(c.Request.Context(), criteria)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCriteria) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_criteria",
				Message: err.Error(),
			})
			return
		}
		h.logger.Error("Failed to build stats report",
			zap.String("report", report),
			zap.String("api_key", middleware.APIKeyName(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to build report",
		})
		return
	}

	if rows == nil {
		rows = []T{}
	}
	c.JSON(http.StatusOK, ListResponse[T]{Data: rows, Count: len(rows)})
}
