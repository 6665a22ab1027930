package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pamoka/timetable-api/internal/models"
	"github.com/pamoka/timetable-api/internal/store"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
)

type stubTimetable struct {
	slots       []models.LessonTimeTemplate
	addSlotErr  error
	addedSlot   *models.LessonTimeTemplate
	dayEntries  []store.DayEntry
	dayWeekID   string
	dayWeekday  models.Weekday
	notedID     string
	notedText   string
	attachedID  string
	attached    []byte
	reminderAt  int64
	reminderErr error
}

func (s *stubTimetable) CurrentWeekID() string { return "2026-03-02" }

func (s *stubTimetable) ListSlots(context.Context) []models.LessonTimeTemplate { return s.slots }

func (s *stubTimetable) AddSlot(_ context.Context, lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error) {
	if s.addSlotErr != nil {
		return models.LessonTimeTemplate{}, s.addSlotErr
	}
	slot := models.LessonTimeTemplate{ID: "slot-1", LessonNumber: lessonNumber, StartMillis: startMillis, EndMillis: endMillis}
	s.addedSlot = &slot
	return slot, nil
}

func (s *stubTimetable) UpdateSlot(_ context.Context, id string, lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error) {
	return models.LessonTimeTemplate{ID: id, LessonNumber: lessonNumber, StartMillis: startMillis, EndMillis: endMillis}, nil
}

func (s *stubTimetable) DeleteSlot(context.Context, string) error { return nil }

func (s *stubTimetable) TemplatesFor(context.Context, models.Weekday) ([]models.LessonTemplate, error) {
	return nil, nil
}

func (s *stubTimetable) AddTemplate(_ context.Context, day models.Weekday, name string, startMillis, endMillis int64) (models.LessonTemplate, error) {
	return models.LessonTemplate{ID: "tpl-1", Name: name, StartMillis: startMillis, EndMillis: endMillis}, nil
}

func (s *stubTimetable) UpdateTemplate(_ context.Context, id, name string, startMillis, endMillis int64) (models.LessonTemplate, error) {
	return models.LessonTemplate{ID: id, Name: name, StartMillis: startMillis, EndMillis: endMillis}, nil
}

func (s *stubTimetable) DeleteTemplate(context.Context, string) error { return nil }

func (s *stubTimetable) DayView(_ context.Context, weekID string, day models.Weekday) ([]store.DayEntry, error) {
	s.dayWeekID = weekID
	s.dayWeekday = day
	return s.dayEntries, nil
}

func (s *stubTimetable) GetWeekly(context.Context, string) (models.WeeklyLesson, error) {
	return models.WeeklyLesson{}, appErrors.Clone(appErrors.ErrNotFound, "weekly lesson not found")
}

func (s *stubTimetable) SetNote(_ context.Context, id, note string) (models.WeeklyLesson, error) {
	s.notedID = id
	s.notedText = note
	return models.WeeklyLesson{ID: id, Note: note}, nil
}

func (s *stubTimetable) AttachImage(_ context.Context, id string, data []byte) (models.WeeklyLesson, error) {
	s.attachedID = id
	s.attached = data
	return models.WeeklyLesson{ID: id, ImagePaths: []string{"lesson_image_1.img"}}, nil
}

func (s *stubTimetable) DetachImage(_ context.Context, id, path string) (models.WeeklyLesson, error) {
	return models.WeeklyLesson{ID: id}, nil
}

func (s *stubTimetable) SetReminder(_ context.Context, id string, atMillis int64) (models.WeeklyLesson, error) {
	if s.reminderErr != nil {
		return models.WeeklyLesson{}, s.reminderErr
	}
	s.reminderAt = atMillis
	return models.WeeklyLesson{ID: id, ReminderMillis: atMillis}, nil
}

func (s *stubTimetable) ClearReminder(_ context.Context, id string) (models.WeeklyLesson, error) {
	return models.WeeklyLesson{ID: id}, nil
}

func setupRouter(svc timetableService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewTimetableHandler(svc, nil).Register(router.Group("/api/v1"))
	return router
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSlot(t *testing.T) {
	svc := &stubTimetable{}
	router := setupRouter(svc)

	rec := performJSON(t, router, http.MethodPost, "/api/v1/slots", gin.H{
		"lesson_number": 1,
		"start_millis":  1_000_000,
		"end_millis":    1_500_000,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.addedSlot)
	assert.Equal(t, 1, svc.addedSlot.LessonNumber)
}

func TestCreateSlotValidation(t *testing.T) {
	router := setupRouter(&stubTimetable{})

	rec := performJSON(t, router, http.MethodPost, "/api/v1/slots", gin.H{
		"lesson_number": 11,
		"start_millis":  1_000_000,
		"end_millis":    1_500_000,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), appErrors.ErrValidation.Code)
}

func TestCreateSlotConflictMapsStatus(t *testing.T) {
	router := setupRouter(&stubTimetable{addSlotErr: appErrors.ErrSlotTaken})

	rec := performJSON(t, router, http.MethodPost, "/api/v1/slots", gin.H{
		"lesson_number": 1,
		"start_millis":  1_000_000,
		"end_millis":    1_500_000,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateLessonRejectsDelimiterName(t *testing.T) {
	router := setupRouter(&stubTimetable{})

	rec := performJSON(t, router, http.MethodPost, "/api/v1/weekdays/0/lessons", gin.H{
		"name":         "Math|Physics",
		"start_millis": 1_000_000,
		"end_millis":   1_500_000,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDayViewDefaultsToCurrentWeek(t *testing.T) {
	svc := &stubTimetable{}
	router := setupRouter(svc)

	rec := performJSON(t, router, http.MethodGet, "/api/v1/weekdays/2/day", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-02", svc.dayWeekID)
	assert.Equal(t, models.Wednesday, svc.dayWeekday)
}

func TestDayViewNormalizesWeekDate(t *testing.T) {
	svc := &stubTimetable{}
	router := setupRouter(svc)

	// a Thursday resolves to its Monday
	rec := performJSON(t, router, http.MethodGet, "/api/v1/weekdays/0/day?week=2026-03-05", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-03-02", svc.dayWeekID)
}

func TestDayViewRejectsBadWeekday(t *testing.T) {
	router := setupRouter(&stubTimetable{})

	rec := performJSON(t, router, http.MethodGet, "/api/v1/weekdays/7/day", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetNote(t *testing.T) {
	svc := &stubTimetable{}
	router := setupRouter(svc)

	rec := performJSON(t, router, http.MethodPut, "/api/v1/weekly/w1/note", gin.H{"note": "read chapter 4"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "w1", svc.notedID)
	assert.Equal(t, "read chapter 4", svc.notedText)
}

func TestAttachImageMultipart(t *testing.T) {
	svc := &stubTimetable{}
	router := setupRouter(svc)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/weekly/w1/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "w1", svc.attachedID)
	assert.Equal(t, []byte("jpeg-bytes"), svc.attached)
}

func TestAttachImageMissingFile(t *testing.T) {
	router := setupRouter(&stubTimetable{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/weekly/w1/images", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetReminder(t *testing.T) {
	svc := &stubTimetable{}
	router := setupRouter(svc)

	rec := performJSON(t, router, http.MethodPut, "/api/v1/weekly/w1/reminder", gin.H{"at_millis": 1_767_225_600_000})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1_767_225_600_000), svc.reminderAt)
}

func TestGetWeeklyNotFound(t *testing.T) {
	router := setupRouter(&stubTimetable{})

	rec := performJSON(t, router, http.MethodGet, "/api/v1/weekly/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
