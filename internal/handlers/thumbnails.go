package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/middleware"
	"thumbforge-backend/internal/models"
)

// ThumbnailService is the job lifecycle surface the gateway needs.
type ThumbnailService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*models.Thumbnail, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Thumbnail, error)
	ListJobs(ctx context.Context, ownerID string) ([]models.Thumbnail, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, req jobs.UpdateRequest) (*models.Thumbnail, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

type ThumbnailsHandler struct {
	service ThumbnailService
	logger  zerolog.Logger
}

func NewThumbnailsHandler(service ThumbnailService, logger zerolog.Logger) *ThumbnailsHandler {
	return &ThumbnailsHandler{
		service: service,
		logger:  logger.With().Str("component", "thumbnails_handler").Logger(),
	}
}

// CreateThumbnail godoc
// @Summary     Submit a thumbnail generation job
// @Description Creates the record and starts generation. Poll GET /thumbnails/{id} for the outcome.
// @Tags        thumbnails
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body models.CreateThumbnailRequest true "Thumbnail request"
// @Success     202 {object} models.Thumbnail
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/v1/thumbnails [post]
func (h *ThumbnailsHandler) CreateThumbnail(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	var req models.CreateThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	thumb, err := h.service.Submit(c.Request.Context(), jobs.SubmitRequest{
		OwnerID:     userID,
		Title:       req.Title,
		UserPrompt:  req.UserPrompt,
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		ColorScheme: req.ColorScheme,
		TextOverlay: req.TextOverlay,
	})
	if err != nil {
		h.respondError(c, "failed to submit thumbnail", err)
		return
	}

	c.Header("Location", "/api/v1/thumbnails/"+thumb.ID.String())
	c.JSON(http.StatusAccepted, thumb)
}

// ListThumbnails godoc
// @Summary     List the caller's thumbnails
// @Tags        thumbnails
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} models.ThumbnailListResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/v1/thumbnails [get]
func (h *ThumbnailsHandler) ListThumbnails(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return
	}

	thumbs, err := h.service.ListJobs(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "failed to list thumbnails", err)
		return
	}
	if thumbs == nil {
		thumbs = []models.Thumbnail{}
	}

	c.JSON(http.StatusOK, models.ThumbnailListResponse{Thumbnails: thumbs})
}

// GetThumbnail godoc
// @Summary     Get a thumbnail and its generation status
// @Tags        thumbnails
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Thumbnail ID"
// @Success     200 {object} models.Thumbnail
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/v1/thumbnails/{id} [get]
func (h *ThumbnailsHandler) GetThumbnail(c *gin.Context) {
	thumb, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, thumb)
}

// UpdateThumbnail godoc
// @Summary     Update descriptive fields of a thumbnail
// @Description Status and results are never changed by this endpoint.
// @Tags        thumbnails
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                        true "Thumbnail ID"
// @Param       request body models.UpdateThumbnailRequest true "Fields to change"
// @Success     200 {object} models.Thumbnail
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/v1/thumbnails/{id} [patch]
func (h *ThumbnailsHandler) UpdateThumbnail(c *gin.Context) {
	var req models.UpdateThumbnailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	thumb, ok := h.loadOwned(c)
	if !ok {
		return
	}

	updated, err := h.service.UpdateDetails(c.Request.Context(), thumb.ID, jobs.UpdateRequest{
		Title:       req.Title,
		UserPrompt:  req.UserPrompt,
		Style:       req.Style,
		AspectRatio: req.AspectRatio,
		ColorScheme: req.ColorScheme,
		TextOverlay: req.TextOverlay,
	})
	if err != nil {
		h.respondError(c, "failed to update thumbnail", err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteThumbnail godoc
// @Summary     Delete a thumbnail in any state
// @Tags        thumbnails
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Thumbnail ID"
// @Success     200 {object} models.DeleteResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/v1/thumbnails/{id} [delete]
func (h *ThumbnailsHandler) DeleteThumbnail(c *gin.Context) {
	thumb, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if err := h.service.DeleteJob(c.Request.Context(), thumb.ID); err != nil {
		h.respondError(c, "failed to delete thumbnail", err)
		return
	}

	c.JSON(http.StatusOK, models.DeleteResponse{ID: thumb.ID.String(), Deleted: true})
}

// loadOwned resolves :id to a record owned by the caller. Another owner's
// record is reported as not found.
func (h *ThumbnailsHandler) loadOwned(c *gin.Context) (*models.Thumbnail, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "user id not found"})
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid thumbnail id"})
		return nil, false
	}

	thumb, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "failed to get thumbnail", err)
		return nil, false
	}
	if thumb.OwnerID != userID {
		h.respondError(c, "failed to get thumbnail", jobs.ErrNotFound)
		return nil, false
	}
	return thumb, true
}

func (h *ThumbnailsHandler) respondError(c *gin.Context, msg string, err error) {
	var verr *jobs.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: verr.Error()})
	case errors.Is(err, jobs.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "thumbnail not found"})
	case errors.Is(err, jobs.ErrConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: "thumbnail changed concurrently", Message: "retry the request"})
	default:
		logger := h.requestLogger(c)
		logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: msg, Message: err.Error()})
	}
}

// requestLogger prefers the request-scoped logger set by RequestLogger so
// errors carry the request id.
func (h *ThumbnailsHandler) requestLogger(c *gin.Context) zerolog.Logger {
	l := zerolog.Ctx(c.Request.Context())
	if l.GetLevel() == zerolog.Disabled {
		return h.logger
	}
	return l.With().Str("component", "thumbnails_handler").Logger()
}

// Register mounts the thumbnail routes on an authenticated group.
func (h *ThumbnailsHandler) Register(rg gin.IRoutes) {
	rg.POST("/thumbnails", h.CreateThumbnail)
	rg.GET("/thumbnails", h.ListThumbnails)
	rg.GET("/thumbnails/:id", h.GetThumbnail)
	rg.PATCH("/thumbnails/:id", h.UpdateThumbnail)
	rg.DELETE("/thumbnails/:id", h.DeleteThumbnail)
}
