package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reminder is the payload delivered when a note reminder fires.
type Reminder struct {
	LessonID   string    `json:"lesson_id"`
	LessonName string    `json:"lesson_name"`
	Note       string    `json:"note"`
	At         time.Time `json:"at"`
}

// Notifier receives fired reminders.
type Notifier interface {
	Notify(reminder Reminder)
}

// ReminderScheduler arms one-shot reminders keyed by weekly lesson id.
// Scheduling again for the same id replaces the pending reminder; Cancel is
// idempotent.
type ReminderScheduler interface {
	ScheduleOneShot(at time.Time, reminder Reminder)
	Cancel(lessonID string)
}

// TimerScheduler is the in-process ReminderScheduler, one timer per pending
// reminder.
type TimerScheduler struct {
	notifier Notifier
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerScheduler constructs a scheduler delivering through the notifier.
func NewTimerScheduler(notifier Notifier, logger *zap.Logger) *TimerScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerScheduler{
		notifier: notifier,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// ScheduleOneShot arms a reminder. An instant already in the past fires
// immediately.
func (s *TimerScheduler) ScheduleOneShot(at time.Time, reminder Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[reminder.LessonID]; ok {
		existing.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	id := reminder.LessonID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.logger.Info("reminder fired",
			zap.String("lesson_id", id),
			zap.String("lesson", reminder.LessonName))
		if s.notifier != nil {
			s.notifier.Notify(reminder)
		}
	})
}

// Cancel disarms a pending reminder. Cancelling an unknown id is a no-op.
func (s *TimerScheduler) Cancel(lessonID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[lessonID]; ok {
		timer.Stop()
		delete(s.timers, lessonID)
	}
}

// Pending reports how many reminders are armed.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every pending reminder.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// LogNotifier delivers reminders to the log and the metrics counter. It is
// the default sink when no push channel is configured.
type LogNotifier struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewLogNotifier constructs the notifier.
func NewLogNotifier(logger *zap.Logger, metrics *MetricsService) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger, metrics: metrics}
}

// Notify logs the reminder payload.
func (n *LogNotifier) Notify(reminder Reminder) {
	n.logger.Info("lesson reminder",
		zap.String("lesson_id", reminder.LessonID),
		zap.String("lesson", reminder.LessonName),
		zap.String("note", reminder.Note),
		zap.Time("at", reminder.At))
	n.metrics.RecordReminderFired()
}
