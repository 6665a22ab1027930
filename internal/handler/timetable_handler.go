package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/pamoka/timetable-api/internal/dto"
	"github.com/pamoka/timetable-api/internal/models"
	"github.com/pamoka/timetable-api/internal/store"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
	"github.com/pamoka/timetable-api/pkg/response"
)

// maxImageBytes caps an uploaded lesson image.
const maxImageBytes = 10 << 20

type timetableService interface {
	CurrentWeekID() string
	ListSlots(ctx context.Context) []models.LessonTimeTemplate
	AddSlot(ctx context.Context, lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error)
	UpdateSlot(ctx context.Context, id string, lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error)
	DeleteSlot(ctx context.Context, id string) error
	TemplatesFor(ctx context.Context, day models.Weekday) ([]models.LessonTemplate, error)
	AddTemplate(ctx context.Context, day models.Weekday, name string, startMillis, endMillis int64) (models.LessonTemplate, error)
	UpdateTemplate(ctx context.Context, id, name string, startMillis, endMillis int64) (models.LessonTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	DayView(ctx context.Context, weekID string, day models.Weekday) ([]store.DayEntry, error)
	GetWeekly(ctx context.Context, id string) (models.WeeklyLesson, error)
	SetNote(ctx context.Context, id, note string) (models.WeeklyLesson, error)
	AttachImage(ctx context.Context, id string, data []byte) (models.WeeklyLesson, error)
	DetachImage(ctx context.Context, id, path string) (models.WeeklyLesson, error)
	SetReminder(ctx context.Context, id string, atMillis int64) (models.WeeklyLesson, error)
	ClearReminder(ctx context.Context, id string) (models.WeeklyLesson, error)
}

// TimetableHandler exposes the timetable operations over HTTP.
type TimetableHandler struct {
	service  timetableService
	validate *validator.Validate
}

// NewTimetableHandler builds a new handler.
func NewTimetableHandler(service timetableService, validate *validator.Validate) *TimetableHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &TimetableHandler{service: service, validate: validate}
}

// Register mounts the timetable routes on the group.
func (h *TimetableHandler) Register(r *gin.RouterGroup) {
	r.GET("/slots", h.ListSlots)
	r.POST("/slots", h.CreateSlot)
	r.PUT("/slots/:id", h.UpdateSlot)
	r.DELETE("/slots/:id", h.DeleteSlot)

	r.GET("/weekdays/:weekday/lessons", h.ListLessons)
	r.POST("/weekdays/:weekday/lessons", h.CreateLesson)
	r.PUT("/lessons/:id", h.UpdateLesson)
	r.DELETE("/lessons/:id", h.DeleteLesson)

	r.GET("/weekdays/:weekday/day", h.DayView)

	r.GET("/weekly/:id", h.GetWeekly)
	r.PUT("/weekly/:id/note", h.SetNote)
	r.POST("/weekly/:id/images", h.AttachImage)
	r.DELETE("/weekly/:id/images", h.DetachImage)
	r.PUT("/weekly/:id/reminder", h.SetReminder)
	r.DELETE("/weekly/:id/reminder", h.ClearReminder)
}

// ListSlots returns the defined period slots.
func (h *TimetableHandler) ListSlots(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.ListSlots(c.Request.Context()))
}

// CreateSlot defines a period slot.
func (h *TimetableHandler) CreateSlot(c *gin.Context) {
	var req dto.CreateSlotRequest
	if err := h.bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	slot, err := h.service.AddSlot(c.Request.Context(), req.LessonNumber, req.StartMillis, req.EndMillis)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// UpdateSlot rewrites a period slot.
func (h *TimetableHandler) UpdateSlot(c *gin.Context) {
	var req dto.UpdateSlotRequest
	if err := h.bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	slot, err := h.service.UpdateSlot(c.Request.Context(), c.Param("id"), req.LessonNumber, req.StartMillis, req.EndMillis)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot)
}

// DeleteSlot removes a period slot.
func (h *TimetableHandler) DeleteSlot(c *gin.Context) {
	if err := h.service.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListLessons returns a weekday's lessons in day order.
func (h *TimetableHandler) ListLessons(c *gin.Context) {
	day, err := weekdayParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	lessons, err := h.service.TemplatesFor(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons)
}

// CreateLesson places a lesson into a weekday.
func (h *TimetableHandler) CreateLesson(c *gin.Context) {
	day, err := weekdayParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateLessonRequest
	if err := h.bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	lesson, err := h.service.AddTemplate(c.Request.Context(), day, req.Name, req.StartMillis, req.EndMillis)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// UpdateLesson edits a lesson in place.
func (h *TimetableHandler) UpdateLesson(c *gin.Context) {
	var req dto.UpdateLessonRequest
	if err := h.bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	lesson, err := h.service.UpdateTemplate(c.Request.Context(), c.Param("id"), req.Name, req.StartMillis, req.EndMillis)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson)
}

// DeleteLesson removes a lesson and its weekly notes.
func (h *TimetableHandler) DeleteLesson(c *gin.Context) {
	if err := h.service.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DayView materializes a weekday of a week. The week query parameter takes a
// date whose week is shown; it defaults to the current week.
func (h *TimetableHandler) DayView(c *gin.Context) {
	day, err := weekdayParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	weekID, err := h.weekParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.DayView(c.Request.Context(), weekID, day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"week": weekID})
}

// GetWeekly fetches one weekly note instance.
func (h *TimetableHandler) GetWeekly(c *gin.Context) {
	row, err := h.service.GetWeekly(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row)
}

// SetNote replaces the note text.
func (h *TimetableHandler) SetNote(c *gin.Context) {
	var req dto.SetNoteRequest
	if err := h.bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	row, err := h.service.SetNote(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row)
}

// AttachImage stores an uploaded image and links it to the note.
func (h *TimetableHandler) AttachImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "image file missing"))
		return
	}
	if file.Size > maxImageBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "image too large"))
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(src, maxImageBytes))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}

	row, err := h.service.AttachImage(c.Request.Context(), c.Param("id"), data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

// DetachImage unlinks an image and deletes its file.
func (h *TimetableHandler) DetachImage(c *gin.Context) {
	var req dto.DetachImageRequest
	if err := h.bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	row, err := h.service.DetachImage(c.Request.Context(), c.Param("id"), req.Path)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row)
}

// SetReminder arms a reminder on the note.
func (h *TimetableHandler) SetReminder(c *gin.Context) {
	var req dto.SetReminderRequest
	if err := h.bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	row, err := h.service.SetReminder(c.Request.Context(), c.Param("id"), req.AtMillis)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row)
}

// ClearReminder disarms the note's reminder.
func (h *TimetableHandler) ClearReminder(c *gin.Context) {
	row, err := h.service.ClearReminder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row)
}

func (h *TimetableHandler) bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	if err := h.validate.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed")
	}
	return nil
}

func (h *TimetableHandler) weekParam(c *gin.Context) (string, error) {
	raw := c.Query("week")
	if raw == "" {
		return h.service.CurrentWeekID(), nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "week must be a yyyy-mm-dd date")
	}
	return models.WeekIdentifierFor(date), nil
}

func weekdayParam(c *gin.Context) (models.Weekday, error) {
	value, err := strconv.Atoi(c.Param("weekday"))
	if err != nil || !models.Weekday(value).Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "weekday must be 0 (Monday) through 4 (Friday)")
	}
	return models.Weekday(value), nil
}
