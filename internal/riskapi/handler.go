package riskapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/trust-ring-detector/internal/riskstore"
	"github.com/richxcame/trust-ring-detector/pkg/common"
	"github.com/richxcame/trust-ring-detector/pkg/logger"
	"github.com/richxcame/trust-ring-detector/pkg/middleware"
	"github.com/richxcame/trust-ring-detector/pkg/pagination"
	"go.uber.org/zap"
)

// ScoreService is the read side the handler depends on
type ScoreService interface {
	LatestRun(ctx context.Context) (*riskstore.Run, error)
	GetProfileRisk(ctx context.Context, profileID int64) (*riskstore.ProfileScore, error)
	ListHighRisk(ctx context.Context, minScore *float64, limit, offset int) (*HighRiskPage, error)
}

var _ ScoreService = (*Service)(nil)

// Handler handles HTTP requests for risk scores
type Handler struct {
	service ScoreService
}

// NewHandler creates a new risk score handler
func NewHandler(service ScoreService) *Handler {
	return &Handler{service: service}
}

type profileURI struct {
	ID int64 `uri:"id" json:"id" validate:"gt=0"`
}

type highRiskQuery struct {
	MinScore *float64 `form:"min_score" validate:"omitempty,gte=0,lte=100"`
}

// GetProfileRisk returns the latest score breakdown for a profile
func (h *Handler) GetProfileRisk(c *gin.Context) {
	var uri profileURI
	if err := middleware.ValidateURI(c, &uri); err != nil {
		middleware.RespondWithValidationError(c, err)
		return
	}

	score, err := h.service.GetProfileRisk(c.Request.Context(), uri.ID)
	if err != nil {
		h.respondError(c, err, "profile risk score not found")
		return
	}

	common.SuccessResponse(c, score)
}

// GetLatestRun returns the latest run and its network summary
func (h *Handler) GetLatestRun(c *gin.Context) {
	run, err := h.service.LatestRun(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "no analysis run found")
		return
	}

	common.SuccessResponse(c, run)
}

// GetHighRisk lists profiles at or above min_score, defaulting to the run threshold
func (h *Handler) GetHighRisk(c *gin.Context) {
	var q highRiskQuery
	if err := middleware.ValidateQuery(c, &q); err != nil {
		middleware.RespondWithValidationError(c, err)
		return
	}
	params := pagination.ParseParams(c)

	page, err := h.service.ListHighRisk(c.Request.Context(), q.MinScore, params.Limit, params.Offset)
	if err != nil {
		h.respondError(c, err, "no analysis run found")
		return
	}

	common.SuccessResponseWithMeta(c, gin.H{
		"run_id":    page.Run.ID,
		"min_score": page.MinScore,
		"profiles":  page.Profiles,
	}, pagination.BuildMeta(params.Limit, params.Offset, page.Total))
}

func (h *Handler) respondError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, riskstore.ErrNotFound) {
		common.AppErrorResponse(c, common.NewNotFoundError(notFound, err))
		return
	}

	logger.WithContext(c.Request.Context()).Error("Risk score lookup failed", zap.Error(err))
	common.ErrorResponse(c, http.StatusInternalServerError, "failed to load risk scores")
}

// RegisterRoutes registers the risk score routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	runs := r.Group("/runs")
	{
		runs.GET("/latest", h.GetLatestRun)
	}

	profiles := r.Group("/profiles")
	{
		profiles.GET("/high-risk", h.GetHighRisk)
		profiles.GET("/:id/risk", h.GetProfileRisk)
	}
}
