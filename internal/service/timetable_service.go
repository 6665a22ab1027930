// Package service orchestrates the timetable core: the load/validate/repair
// pipeline, persistence through the blob store, reminders, maintenance, and
// the small settings operations. Services stay transport-free; handlers call
// in from the HTTP facade.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pamoka/timetable-api/internal/codec"
	"github.com/pamoka/timetable-api/internal/models"
	"github.com/pamoka/timetable-api/internal/repository"
	"github.com/pamoka/timetable-api/internal/store"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
	"github.com/pamoka/timetable-api/pkg/jobs"
)

// Background job types handled by the timetable queue.
const (
	JobSaveTimetable    = "save_timetable"
	JobImageMaintenance = "image_maintenance"
)

type blobStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

type imageFiles interface {
	SaveBytes(data []byte) (string, error)
	Exists(path string) bool
	Delete(path string) error
	Decodable(path string) bool
}

type saveQueue interface {
	Enqueue(job jobs.Job) error
}

// TimetableService owns the in-memory store and everything around it.
type TimetableService struct {
	store     *store.TimetableStore
	blobs     blobStore
	images    imageFiles
	scheduler ReminderScheduler
	metrics   *MetricsService
	logger    *zap.Logger
	queue     saveQueue
	now       func() time.Time

	state stateHolder
}

// NewTimetableService constructs the service. The job queue is attached
// separately because its handler is this service.
func NewTimetableService(st *store.TimetableStore, blobs blobStore, images imageFiles, scheduler ReminderScheduler, metrics *MetricsService, logger *zap.Logger) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TimetableService{
		store:     st,
		blobs:     blobs,
		images:    images,
		scheduler: scheduler,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
	s.state.set(StateIdle)
	return s
}

// AttachQueue wires the background queue used for asynchronous saves and the
// maintenance pass. Without a queue every save runs inline.
func (s *TimetableService) AttachQueue(q saveQueue) {
	s.queue = q
}

// HandleJob dispatches queued background work.
func (s *TimetableService) HandleJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobSaveTimetable:
		return s.SaveNow(ctx)
	case JobImageMaintenance:
		return s.RunImageMaintenance(ctx)
	default:
		return fmt.Errorf("unknown job type %s", job.Type)
	}
}

// CurrentWeekID names the week containing the current instant.
func (s *TimetableService) CurrentWeekID() string {
	return models.WeekIdentifierFor(s.now())
}

// ---- Slots ----

// ListSlots returns the slot definitions ordered by lesson number.
func (s *TimetableService) ListSlots(ctx context.Context) []models.LessonTimeTemplate {
	return s.store.Slots()
}

// AddSlot defines a period slot and persists.
func (s *TimetableService) AddSlot(ctx context.Context, lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error) {
	slot, err := s.store.AddSlot(lessonNumber, startMillis, endMillis)
	if err != nil {
		return models.LessonTimeTemplate{}, err
	}
	s.scheduleSave(ctx)
	return slot, nil
}

// UpdateSlot rewrites a slot and persists.
func (s *TimetableService) UpdateSlot(ctx context.Context, id string, lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error) {
	slot, err := s.store.UpdateSlot(id, lessonNumber, startMillis, endMillis)
	if err != nil {
		return models.LessonTimeTemplate{}, err
	}
	s.scheduleSave(ctx)
	return slot, nil
}

// DeleteSlot removes a slot and persists.
func (s *TimetableService) DeleteSlot(ctx context.Context, id string) error {
	if err := s.store.DeleteSlot(id); err != nil {
		return err
	}
	s.scheduleSave(ctx)
	return nil
}

// ---- Templates ----

// TemplatesFor returns a weekday's lessons in day-view order.
func (s *TimetableService) TemplatesFor(ctx context.Context, day models.Weekday) ([]models.LessonTemplate, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekday out of range")
	}
	return s.store.TemplatesFor(day), nil
}

// AddTemplate places a lesson and persists.
func (s *TimetableService) AddTemplate(ctx context.Context, day models.Weekday, name string, startMillis, endMillis int64) (models.LessonTemplate, error) {
	tpl, err := s.store.AddTemplate(day, name, startMillis, endMillis, false)
	if err != nil {
		return models.LessonTemplate{}, err
	}
	s.scheduleSave(ctx)
	return tpl, nil
}

// UpdateTemplate edits a lesson in place and persists.
func (s *TimetableService) UpdateTemplate(ctx context.Context, id, name string, startMillis, endMillis int64) (models.LessonTemplate, error) {
	tpl, err := s.store.UpdateTemplate(id, name, startMillis, endMillis)
	if err != nil {
		return models.LessonTemplate{}, err
	}
	s.scheduleSave(ctx)
	return tpl, nil
}

// DeleteTemplate removes a lesson, cancels reminders on its cascading weekly
// rows, and persists.
func (s *TimetableService) DeleteTemplate(ctx context.Context, id string) error {
	snap := s.store.Snapshot()
	for _, days := range snap.Weekly {
		for _, rows := range days {
			for _, row := range rows {
				if row.TemplateID == id && s.scheduler != nil {
					s.scheduler.Cancel(row.ID)
				}
			}
		}
	}

	if err := s.store.DeleteTemplate(id); err != nil {
		return err
	}
	s.scheduleSave(ctx)
	return nil
}

// ---- Day view and weekly notes ----

// DayView materializes a weekday of a week: every lesson paired with its
// note instance, creating empty instances on first access. Only a view that
// actually created instances schedules a save.
func (s *TimetableService) DayView(ctx context.Context, weekID string, day models.Weekday) ([]store.DayEntry, error) {
	entries, created, err := s.store.MaterializeDay(weekID, day)
	if err != nil {
		return nil, err
	}
	if created > 0 {
		s.scheduleSave(ctx)
	}
	return entries, nil
}

// GetWeekly fetches one note instance.
func (s *TimetableService) GetWeekly(ctx context.Context, id string) (models.WeeklyLesson, error) {
	row, ok := s.store.WeeklyByID(id)
	if !ok {
		return models.WeeklyLesson{}, appErrors.Clone(appErrors.ErrNotFound, "weekly lesson not found")
	}
	return row, nil
}

// SetNote replaces the note text and persists.
func (s *TimetableService) SetNote(ctx context.Context, id, note string) (models.WeeklyLesson, error) {
	row, err := s.store.SetNote(id, note)
	if err != nil {
		return models.WeeklyLesson{}, err
	}
	s.scheduleSave(ctx)
	return row, nil
}

// AttachImage stores the image bytes as a file and links it to the note.
func (s *TimetableService) AttachImage(ctx context.Context, id string, data []byte) (models.WeeklyLesson, error) {
	if len(data) == 0 {
		return models.WeeklyLesson{}, appErrors.Clone(appErrors.ErrValidation, "empty image payload")
	}
	path, err := s.images.SaveBytes(data)
	if err != nil {
		return models.WeeklyLesson{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	row, err := s.store.AddImage(id, path)
	if err != nil {
		if cleanupErr := s.images.Delete(path); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned image file", zap.String("path", path), zap.Error(cleanupErr))
		}
		return models.WeeklyLesson{}, err
	}
	s.scheduleSave(ctx)
	return row, nil
}

// DetachImage unlinks an image from the note and deletes its file.
func (s *TimetableService) DetachImage(ctx context.Context, id, path string) (models.WeeklyLesson, error) {
	row, err := s.store.RemoveImage(id, path)
	if err != nil {
		return models.WeeklyLesson{}, err
	}
	if err := s.images.Delete(path); err != nil {
		s.logger.Warn("failed to delete image file", zap.String("path", path), zap.Error(err))
	}
	s.scheduleSave(ctx)
	return row, nil
}

// SetReminder arms a future reminder on a note instance and persists.
func (s *TimetableService) SetReminder(ctx context.Context, id string, atMillis int64) (models.WeeklyLesson, error) {
	if atMillis <= s.now().UnixMilli() {
		return models.WeeklyLesson{}, appErrors.Clone(appErrors.ErrValidation, "reminder must be in the future")
	}
	row, err := s.store.SetReminder(id, atMillis)
	if err != nil {
		return models.WeeklyLesson{}, err
	}
	s.armReminder(row)
	s.scheduleSave(ctx)
	return row, nil
}

// ClearReminder disarms and clears a reminder, persisting the change.
func (s *TimetableService) ClearReminder(ctx context.Context, id string) (models.WeeklyLesson, error) {
	row, err := s.store.ClearReminder(id)
	if err != nil {
		return models.WeeklyLesson{}, err
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(id)
	}
	s.scheduleSave(ctx)
	return row, nil
}

func (s *TimetableService) armReminder(row models.WeeklyLesson) {
	if s.scheduler == nil {
		return
	}
	name := ""
	if tpl, _, ok := s.store.TemplateByID(row.TemplateID); ok {
		name = tpl.Name
	}
	s.scheduler.ScheduleOneShot(time.UnixMilli(row.ReminderMillis), Reminder{
		LessonID:   row.ID,
		LessonName: name,
		Note:       row.Note,
		At:         time.UnixMilli(row.ReminderMillis),
	})
}

// RescheduleAllReminders re-arms every live reminder, as after a restart.
func (s *TimetableService) RescheduleAllReminders() int {
	if s.scheduler == nil {
		return 0
	}
	now := s.now()
	count := 0
	snap := s.store.Snapshot()
	for _, days := range snap.Weekly {
		for _, rows := range days {
			for _, row := range rows {
				if row.HasReminder(now) {
					s.armReminder(row)
					count++
				}
			}
		}
	}
	if count > 0 {
		s.logger.Info("rescheduled reminders", zap.Int("count", count))
	}
	return count
}

// ---- Wipe ----

// DeleteAll wipes lessons and notes, optionally the slot definitions too,
// from memory and the blob store.
func (s *TimetableService) DeleteAll(ctx context.Context, includeSlots bool) error {
	if s.scheduler != nil {
		snap := s.store.Snapshot()
		for _, days := range snap.Weekly {
			for _, rows := range days {
				for _, row := range rows {
					s.scheduler.Cancel(row.ID)
				}
			}
		}
	}

	s.store.Clear(includeSlots)

	keys := []string{repository.KeyTemplates, repository.KeyWeekly}
	if includeSlots {
		keys = append(keys, repository.KeySlots)
	}
	if err := s.blobs.Delete(ctx, keys...); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear stored timetable")
	}
	s.logger.Info("timetable wiped", zap.Bool("include_slots", includeSlots))
	return nil
}

// ---- Persistence ----

// SaveNow encodes the store and writes all three blobs synchronously. It
// refuses to write before a successful load, so a failed bootstrap can never
// be overwritten with an empty timetable.
func (s *TimetableService) SaveNow(ctx context.Context) error {
	if s.State() != StateDone {
		return appErrors.Clone(appErrors.ErrUnavailable, "timetable is not loaded")
	}

	snap := s.store.Snapshot()

	if err := s.blobs.Set(ctx, repository.KeySlots, codec.EncodeSlots(snap.Slots)); err != nil {
		return fmt.Errorf("persist slots: %w", err)
	}
	if err := s.blobs.Set(ctx, repository.KeyTemplates, codec.EncodeTemplates(snap.Templates)); err != nil {
		return fmt.Errorf("persist templates: %w", err)
	}
	if err := s.blobs.Set(ctx, repository.KeyWeekly, codec.EncodeWeekly(snap.Weekly)); err != nil {
		return fmt.Errorf("persist weekly lessons: %w", err)
	}

	s.metrics.RecordSave()
	s.logger.Debug("timetable persisted")
	return nil
}

// scheduleSave queues an asynchronous save, falling back to an inline save
// when no queue is attached or the queue refuses the job.
func (s *TimetableService) scheduleSave(ctx context.Context) {
	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: uuid.New().String(), Type: JobSaveTimetable})
		if err == nil {
			return
		}
		s.logger.Warn("save enqueue failed, saving inline", zap.Error(err))
	}
	if err := s.SaveNow(ctx); err != nil {
		s.logger.Error("inline save failed", zap.Error(err))
	}
}
