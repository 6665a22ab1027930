package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/pamoka/timetable-api/pkg/errors"
)

type stubSettings struct {
	language string
	setErr   error
}

func (s *stubSettings) Language(context.Context) (string, error) {
	if s.language == "" {
		return "en", nil
	}
	return s.language, nil
}

func (s *stubSettings) SetLanguage(_ context.Context, code string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.language = code
	return nil
}

type stubFeedback struct {
	submitted []string
	err       error
}

func (s *stubFeedback) Submit(_ context.Context, message string) error {
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, message)
	return nil
}

type stubWipe struct {
	called       bool
	includeSlots bool
}

func (s *stubWipe) DeleteAll(_ context.Context, includeSlots bool) error {
	s.called = true
	s.includeSlots = includeSlots
	return nil
}

func setupSettingsRouter(settings *stubSettings, feedback *stubFeedback, wipe *stubWipe) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewSettingsHandler(settings, feedback, wipe, nil).Register(router.Group("/api/v1"))
	return router
}

func settingsJSON(t *testing.T, router *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
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

func TestLanguageRoundTrip(t *testing.T) {
	settings := &stubSettings{}
	router := setupSettingsRouter(settings, &stubFeedback{}, &stubWipe{})

	rec := settingsJSON(t, router, http.MethodGet, "/api/v1/settings/language", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"en"`)

	rec = settingsJSON(t, router, http.MethodPut, "/api/v1/settings/language", gin.H{"language": "es"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "es", settings.language)
}

func TestSetLanguageRejectsUnknownCode(t *testing.T) {
	router := setupSettingsRouter(&stubSettings{}, &stubFeedback{}, &stubWipe{})

	rec := settingsJSON(t, router, http.MethodPut, "/api/v1/settings/language", gin.H{"language": "de"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFeatureRequest(t *testing.T) {
	feedback := &stubFeedback{}
	router := setupSettingsRouter(&stubSettings{}, feedback, &stubWipe{})

	rec := settingsJSON(t, router, http.MethodPost, "/api/v1/settings/feature-requests", gin.H{
		"message": "weekly overview screen please",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, feedback.submitted, 1)
}

func TestSubmitFeatureRequestTooShort(t *testing.T) {
	feedback := &stubFeedback{}
	router := setupSettingsRouter(&stubSettings{}, feedback, &stubWipe{})

	rec := settingsJSON(t, router, http.MethodPost, "/api/v1/settings/feature-requests", gin.H{"message": "ok"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, feedback.submitted)
}

func TestSubmitFeatureRequestRateLimited(t *testing.T) {
	router := setupSettingsRouter(&stubSettings{}, &stubFeedback{err: appErrors.ErrTooManyRequests}, &stubWipe{})

	rec := settingsJSON(t, router, http.MethodPost, "/api/v1/settings/feature-requests", gin.H{
		"message": "another idea worth sharing",
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestDeleteAllTimetable(t *testing.T) {
	wipe := &stubWipe{}
	router := setupSettingsRouter(&stubSettings{}, &stubFeedback{}, wipe)

	rec := settingsJSON(t, router, http.MethodDelete, "/api/v1/timetable?include_slots=true", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, wipe.called)
	assert.True(t, wipe.includeSlots)
}
