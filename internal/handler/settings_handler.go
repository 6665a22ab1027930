package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/pamoka/timetable-api/internal/dto"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
	"github.com/pamoka/timetable-api/pkg/response"
)

type settingsService interface {
	Language(ctx context.Context) (string, error)
	SetLanguage(ctx context.Context, code string) error
}

type feedbackService interface {
	Submit(ctx context.Context, message string) error
}

type wipeService interface {
	DeleteAll(ctx context.Context, includeSlots bool) error
}

// SettingsHandler exposes the settings operations: language, feature
// requests, and the full wipe.
type SettingsHandler struct {
	settings settingsService
	feedback feedbackService
	wipe     wipeService
	validate *validator.Validate
}

// NewSettingsHandler builds a new handler.
func NewSettingsHandler(settings settingsService, feedback feedbackService, wipe wipeService, validate *validator.Validate) *SettingsHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &SettingsHandler{settings: settings, feedback: feedback, wipe: wipe, validate: validate}
}

// Register mounts the settings routes on the group.
func (h *SettingsHandler) Register(r *gin.RouterGroup) {
	r.GET("/settings/language", h.GetLanguage)
	r.PUT("/settings/language", h.SetLanguage)
	r.POST("/settings/feature-requests", h.SubmitFeatureRequest)
	r.DELETE("/timetable", h.DeleteAll)
}

// GetLanguage returns the selected language.
func (h *SettingsHandler) GetLanguage(c *gin.Context) {
	code, err := h.settings.Language(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"language": code})
}

// SetLanguage stores the selected language.
func (h *SettingsHandler) SetLanguage(c *gin.Context) {
	var req dto.SetLanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}
	if err := h.settings.SetLanguage(c.Request.Context(), req.Language); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"language": req.Language})
}

// SubmitFeatureRequest forwards a feature suggestion.
func (h *SettingsHandler) SubmitFeatureRequest(c *gin.Context) {
	var req dto.FeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}
	if err := h.feedback.Submit(c.Request.Context(), req.Message); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "submitted"})
}

// DeleteAll wipes the timetable; include_slots=true wipes the period slots too.
func (h *SettingsHandler) DeleteAll(c *gin.Context) {
	includeSlots := c.Query("include_slots") == "true"
	if err := h.wipe.DeleteAll(c.Request.Context(), includeSlots); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
