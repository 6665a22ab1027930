package repository

import "context"

// Blob keys. One key per encoded container plus the small settings values.
const (
	KeySlots          = "lesson_time_templates"
	KeyTemplates      = "lesson_templates"
	KeyWeekly         = "weekly_lessons"
	KeyLanguage       = "selected_language"
	KeyFeedbackSentAt = "last_feature_request_at"
)

// BlobRepository persists opaque string blobs by key. The timetable codec
// output and the small settings values all go through this interface; the
// backend is selected by config.
type BlobRepository interface {
	// Get returns the stored value, or the empty string when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores a value, overwriting any previous one.
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
