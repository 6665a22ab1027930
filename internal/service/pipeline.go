package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pamoka/timetable-api/internal/codec"
	"github.com/pamoka/timetable-api/internal/models"
	"github.com/pamoka/timetable-api/internal/repository"
	"github.com/pamoka/timetable-api/internal/store"
)

// LoadState tracks the startup pipeline.
type LoadState string

const (
	StateIdle             LoadState = "idle"
	StateLoadingSlots     LoadState = "loading_slots"
	StateLoadingTemplates LoadState = "loading_templates"
	StateLoadingWeekly    LoadState = "loading_weekly_lessons"
	StateValidating       LoadState = "validating"
	StateDone             LoadState = "done"
	StateFailed           LoadState = "failed"
)

type stateHolder struct {
	mu    sync.Mutex
	state LoadState
}

func (h *stateHolder) set(state LoadState) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}

func (h *stateHolder) get() LoadState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// State reports where the startup pipeline currently is.
func (s *TimetableService) State() LoadState {
	return s.state.get()
}

// Ready reports whether the startup pipeline completed and the timetable can
// serve traffic. A failed load keeps the service not ready, so nothing can
// overwrite the stored blobs with an empty store.
func (s *TimetableService) Ready() bool {
	return s.State() == StateDone
}

// LoadReport summarizes a pipeline run.
type LoadReport struct {
	State          LoadState `json:"state"`
	SkippedRecords int       `json:"skipped_records"`
	RepairedRows   int       `json:"repaired_rows"`
	DroppedRows    int       `json:"dropped_rows"`
}

// Bootstrap runs the load/validate/repair pipeline once at startup. Damaged
// records are skipped and dangling weekly rows are repaired or dropped with
// the correction persisted immediately; decode itself never fails, so data
// damage cannot block startup. A blob-backend read error is different: the
// stored blobs are left untouched and the run reports Failed so the caller
// can retry once the backend is reachable again.
func (s *TimetableService) Bootstrap(ctx context.Context) LoadReport {
	report := LoadReport{}

	s.state.set(StateLoadingSlots)
	slotsBlob, err := s.blobs.Get(ctx, repository.KeySlots)
	if err != nil {
		return s.failBootstrap("load slots", err)
	}
	slots, skipped := codec.DecodeSlots(slotsBlob)
	report.SkippedRecords += skipped

	s.state.set(StateLoadingTemplates)
	templatesBlob, err := s.blobs.Get(ctx, repository.KeyTemplates)
	if err != nil {
		return s.failBootstrap("load templates", err)
	}
	templates, skipped := codec.DecodeTemplates(templatesBlob)
	report.SkippedRecords += skipped

	s.state.set(StateLoadingWeekly)
	weeklyBlob, err := s.blobs.Get(ctx, repository.KeyWeekly)
	if err != nil {
		return s.failBootstrap("load weekly lessons", err)
	}
	weekly, skipped := codec.DecodeWeekly(weeklyBlob)
	report.SkippedRecords += skipped

	s.state.set(StateValidating)
	repaired, dropped := repairWeekly(templates, weekly)
	report.RepairedRows = repaired
	report.DroppedRows = dropped

	s.store.Restore(store.Snapshot{Slots: slots, Templates: templates, Weekly: weekly})

	s.metrics.RecordSkipped(report.SkippedRecords)
	s.metrics.RecordRepair(repaired, dropped)

	s.state.set(StateDone)
	report.State = StateDone

	if repaired+dropped > 0 {
		if err := s.SaveNow(ctx); err != nil {
			s.logger.Error("failed to persist repaired timetable", zap.Error(err))
		}
	}

	s.logger.Info("timetable loaded",
		zap.Int("skipped_records", report.SkippedRecords),
		zap.Int("repaired_rows", repaired),
		zap.Int("dropped_rows", dropped))

	s.materializeCurrentWeek(ctx)
	s.RescheduleAllReminders()

	return report
}

// failBootstrap handles a blob-backend read failure. The stored blobs stay
// untouched so a transient outage cannot wipe good data; the service reports
// Failed and not ready, and the caller decides whether to retry or abort.
func (s *TimetableService) failBootstrap(step string, cause error) LoadReport {
	s.logger.Error("timetable load failed", zap.String("step", step), zap.Error(cause))
	s.state.set(StateFailed)
	return LoadReport{State: StateFailed}
}

// repairWeekly repoints rows whose template vanished to the first surviving
// lesson, preserving note, images, and reminder. Rows with nothing to adopt
// them are dropped. Returns (repaired, dropped).
func repairWeekly(templates map[models.Weekday][]models.LessonTemplate, weekly map[string]map[models.Weekday][]models.WeeklyLesson) (int, int) {
	valid := make(map[string]struct{})
	for _, bucket := range templates {
		for _, tpl := range bucket {
			valid[tpl.ID] = struct{}{}
		}
	}

	fallbackID := firstTemplateID(templates)

	repaired, dropped := 0, 0
	for weekID, days := range weekly {
		for day, rows := range days {
			kept := rows[:0]
			for _, row := range rows {
				if _, ok := valid[row.TemplateID]; ok {
					kept = append(kept, row)
					continue
				}
				if fallbackID == "" {
					dropped++
					continue
				}
				row.TemplateID = fallbackID
				kept = append(kept, row)
				repaired++
			}
			if len(kept) == 0 {
				delete(days, day)
			} else {
				days[day] = kept
			}
		}
		if len(days) == 0 {
			delete(weekly, weekID)
		}
	}
	return repaired, dropped
}

// firstTemplateID picks the deterministic adoption target: the first real
// lesson in weekday order, falling back to a free lesson when nothing else
// survived.
func firstTemplateID(templates map[models.Weekday][]models.LessonTemplate) string {
	free := ""
	for day := models.Monday; day < models.WeekdayCount; day++ {
		for _, tpl := range templates[day] {
			if !tpl.IsFreeLesson {
				return tpl.ID
			}
			if free == "" {
				free = tpl.ID
			}
		}
	}
	return free
}

// materializeCurrentWeek pre-creates the note instances for every weekday of
// the current week so the day views start populated.
func (s *TimetableService) materializeCurrentWeek(ctx context.Context) {
	weekID := s.CurrentWeekID()
	created := 0
	for day := models.Monday; day < models.WeekdayCount; day++ {
		_, made, err := s.store.MaterializeDay(weekID, day)
		if err != nil {
			continue
		}
		created += made
	}
	if created > 0 {
		s.scheduleSave(ctx)
	}
}
