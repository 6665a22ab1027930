package models

import (
	"time"

	"github.com/google/uuid"
)

// Weekday indexes the five school days, Monday = 0 .. Friday = 4.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday

	WeekdayCount = 5
)

// Valid reports whether the weekday falls inside the Monday..Friday range.
func (d Weekday) Valid() bool {
	return d >= Monday && d < WeekdayCount
}

// MaxLessonNumber caps the numbered period slots per day.
const MaxLessonNumber = 10

// FreeLessonName is the display name given to gap-filler placeholders.
const FreeLessonName = "Free"

// LessonTimeTemplate is a numbered class-period slot: a global, weekday
// independent mapping from lesson number to wall-clock start/end times.
type LessonTimeTemplate struct {
	ID           string `json:"id"`
	LessonNumber int    `json:"lesson_number"`
	StartMillis  int64  `json:"start_millis"`
	EndMillis    int64  `json:"end_millis"`
}

// LessonTemplate is a recurring lesson owned by exactly one weekday bucket.
// A template whose times match a LessonTimeTemplate carries that slot's
// lesson number; free-lesson templates are synthesized by the gap filler.
type LessonTemplate struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StartMillis  int64  `json:"start_millis"`
	EndMillis    int64  `json:"end_millis"`
	Color        string `json:"color"`
	IsFreeLesson bool   `json:"is_free_lesson"`
}

// WeeklyLesson is the per-week note instance for a template. TemplateID is a
// lookup reference, not ownership: the template may have been deleted and
// resolution may legitimately come back empty.
type WeeklyLesson struct {
	ID             string   `json:"id"`
	TemplateID     string   `json:"template_id"`
	Note           string   `json:"note"`
	ImagePaths     []string `json:"image_paths"`
	WeekIdentifier string   `json:"week_identifier"`
	ReminderMillis int64    `json:"reminder_millis"`
}

// HasReminder reports whether a reminder is set and still in the future.
func (l *WeeklyLesson) HasReminder(now time.Time) bool {
	return l.ReminderMillis > 0 && l.ReminderMillis > now.UnixMilli()
}

// NewLessonTemplate builds a template with a fresh identity.
func NewLessonTemplate(name string, startMillis, endMillis int64, color string, isFree bool) LessonTemplate {
	return LessonTemplate{
		ID:           uuid.New().String(),
		Name:         name,
		StartMillis:  startMillis,
		EndMillis:    endMillis,
		Color:        color,
		IsFreeLesson: isFree,
	}
}

// NewWeeklyLesson builds an empty note instance bound to a template and week.
func NewWeeklyLesson(templateID, weekID string) WeeklyLesson {
	return WeeklyLesson{
		ID:             uuid.New().String(),
		TemplateID:     templateID,
		WeekIdentifier: weekID,
	}
}

// NewLessonTimeTemplate builds a numbered slot with a fresh identity.
func NewLessonTimeTemplate(lessonNumber int, startMillis, endMillis int64) LessonTimeTemplate {
	return LessonTimeTemplate{
		ID:           uuid.New().String(),
		LessonNumber: lessonNumber,
		StartMillis:  startMillis,
		EndMillis:    endMillis,
	}
}

// WeekIdentifierFor names the Monday of the week containing t, e.g. 2026-03-02.
func WeekIdentifierFor(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	monday := t.AddDate(0, 0, -offset)
	return monday.Format("2006-01-02")
}

// FormatClock renders epoch millis as a HH:mm wall-clock label.
func FormatClock(millis int64) string {
	return time.UnixMilli(millis).Format("15:04")
}
