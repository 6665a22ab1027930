package dto

// CreateSlotRequest defines a numbered period slot.
type CreateSlotRequest struct {
	LessonNumber int   `json:"lesson_number" validate:"required,min=1,max=10"`
	StartMillis  int64 `json:"start_millis" validate:"min=0"`
	EndMillis    int64 `json:"end_millis" validate:"required,gtfield=StartMillis"`
}

// UpdateSlotRequest rewrites a slot.
type UpdateSlotRequest struct {
	LessonNumber int   `json:"lesson_number" validate:"required,min=1,max=10"`
	StartMillis  int64 `json:"start_millis" validate:"min=0"`
	EndMillis    int64 `json:"end_millis" validate:"required,gtfield=StartMillis"`
}

// CreateLessonRequest places a lesson into a weekday bucket. The name must
// stay clear of the storage delimiters.
type CreateLessonRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100,excludesall=0x7C;"`
	StartMillis int64  `json:"start_millis" validate:"min=0"`
	EndMillis   int64  `json:"end_millis" validate:"required,gtfield=StartMillis"`
}

// UpdateLessonRequest edits a lesson in place.
type UpdateLessonRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100,excludesall=0x7C;"`
	StartMillis int64  `json:"start_millis" validate:"min=0"`
	EndMillis   int64  `json:"end_millis" validate:"required,gtfield=StartMillis"`
}

// SetNoteRequest replaces the note on a weekly lesson. An empty note clears it.
type SetNoteRequest struct {
	Note string `json:"note" validate:"max=5000"`
}

// SetReminderRequest arms a reminder at an epoch-millis instant.
type SetReminderRequest struct {
	AtMillis int64 `json:"at_millis" validate:"required,gt=0"`
}

// DetachImageRequest unlinks a stored image from a weekly lesson.
type DetachImageRequest struct {
	Path string `json:"path" validate:"required"`
}

// SetLanguageRequest selects the UI language.
type SetLanguageRequest struct {
	Language string `json:"language" validate:"required,oneof=en lt es"`
}

// FeatureRequest carries a free-text feature suggestion.
type FeatureRequest struct {
	Message string `json:"message" validate:"required,min=5,max=200"`
}
