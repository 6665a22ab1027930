// Package store holds the live timetable: numbered period slots, per-weekday
// lesson template buckets, and the per-week note instances. One TimetableStore
// owns all of it behind a single mutex; persistence is layered on top via
// Snapshot and Restore.
package store

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pamoka/timetable-api/internal/models"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
)

// unnumbered sorts templates without a matching slot after numbered ones.
const unnumbered = models.MaxLessonNumber + 1

// DayEntry pairs a template with its note instance for a day view.
type DayEntry struct {
	Template     models.LessonTemplate `json:"template"`
	Weekly       models.WeeklyLesson   `json:"weekly"`
	LessonNumber int                   `json:"lesson_number,omitempty"`
	Times        string                `json:"times"`
}

// Snapshot is a deep copy of the store contents, safe to encode or inspect
// without holding the store lock.
type Snapshot struct {
	Slots     []models.LessonTimeTemplate
	Templates map[models.Weekday][]models.LessonTemplate
	Weekly    map[string]map[models.Weekday][]models.WeeklyLesson
}

// TimetableStore is the single in-memory owner of the timetable state.
type TimetableStore struct {
	mu        sync.Mutex
	slots     []models.LessonTimeTemplate
	templates map[models.Weekday][]models.LessonTemplate
	weekly    map[string]map[models.Weekday][]models.WeeklyLesson
	rng       *rand.Rand
}

// NewTimetableStore returns an empty store.
func NewTimetableStore() *TimetableStore {
	return &TimetableStore{
		templates: make(map[models.Weekday][]models.LessonTemplate),
		weekly:    make(map[string]map[models.Weekday][]models.WeeklyLesson),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ---- Slot definitions ----

// AddSlot defines a numbered period slot. Lesson numbers are unique and
// bounded, end must follow start. Free lessons are recomputed afterwards.
func (s *TimetableStore) AddSlot(lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error) {
	if lessonNumber < 1 || lessonNumber > models.MaxLessonNumber {
		return models.LessonTimeTemplate{}, appErrors.Clone(appErrors.ErrValidation, "lesson number out of range")
	}
	if endMillis <= startMillis {
		return models.LessonTimeTemplate{}, appErrors.ErrInvalidTimes
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		if slot.LessonNumber == lessonNumber {
			return models.LessonTimeTemplate{}, appErrors.ErrSlotTaken
		}
	}

	slot := models.NewLessonTimeTemplate(lessonNumber, startMillis, endMillis)
	s.slots = append(s.slots, slot)
	s.sortSlotsLocked()
	s.fillAllGapsLocked()
	return slot, nil
}

// UpdateSlot rewrites a slot's number and times. Templates carrying the old
// times follow the slot to its new times.
func (s *TimetableStore) UpdateSlot(id string, lessonNumber int, startMillis, endMillis int64) (models.LessonTimeTemplate, error) {
	if lessonNumber < 1 || lessonNumber > models.MaxLessonNumber {
		return models.LessonTimeTemplate{}, appErrors.Clone(appErrors.ErrValidation, "lesson number out of range")
	}
	if endMillis <= startMillis {
		return models.LessonTimeTemplate{}, appErrors.ErrInvalidTimes
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, slot := range s.slots {
		if slot.ID == id {
			idx = i
			continue
		}
		if slot.LessonNumber == lessonNumber {
			return models.LessonTimeTemplate{}, appErrors.ErrSlotTaken
		}
	}
	if idx < 0 {
		return models.LessonTimeTemplate{}, appErrors.Clone(appErrors.ErrNotFound, "lesson slot not found")
	}

	old := s.slots[idx]
	updated := models.LessonTimeTemplate{
		ID:           old.ID,
		LessonNumber: lessonNumber,
		StartMillis:  startMillis,
		EndMillis:    endMillis,
	}
	s.slots[idx] = updated

	for day, bucket := range s.templates {
		for i, tpl := range bucket {
			if tpl.StartMillis == old.StartMillis && tpl.EndMillis == old.EndMillis {
				bucket[i].StartMillis = startMillis
				bucket[i].EndMillis = endMillis
			}
		}
		s.templates[day] = bucket
	}

	s.sortSlotsLocked()
	s.fillAllGapsLocked()
	return updated, nil
}

// DeleteSlot removes a slot definition. Free lessons that existed only to
// cover it disappear on the recompute.
func (s *TimetableStore) DeleteSlot(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, slot := range s.slots {
		if slot.ID == id {
			s.slots = append(s.slots[:i], s.slots[i+1:]...)
			s.fillAllGapsLocked()
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "lesson slot not found")
}

// Slots returns the slot definitions ordered by lesson number.
func (s *TimetableStore) Slots() []models.LessonTimeTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.LessonTimeTemplate, len(s.slots))
	copy(out, s.slots)
	return out
}

// LookupSlotByTime finds the slot whose time pair matches exactly.
func (s *TimetableStore) LookupSlotByTime(startMillis, endMillis int64) (models.LessonTimeTemplate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupSlotLocked(startMillis, endMillis)
}

func (s *TimetableStore) lookupSlotLocked(startMillis, endMillis int64) (models.LessonTimeTemplate, bool) {
	for _, slot := range s.slots {
		if slot.StartMillis == startMillis && slot.EndMillis == endMillis {
			return slot, true
		}
	}
	return models.LessonTimeTemplate{}, false
}

func (s *TimetableStore) sortSlotsLocked() {
	sort.Slice(s.slots, func(i, j int) bool { return s.slots[i].LessonNumber < s.slots[j].LessonNumber })
}

// lessonNumberLocked maps a start time to its slot number, unnumbered when no
// slot starts then.
func (s *TimetableStore) lessonNumberLocked(startMillis int64) int {
	for _, slot := range s.slots {
		if slot.StartMillis == startMillis {
			return slot.LessonNumber
		}
	}
	return unnumbered
}

// ---- Templates ----

// AddTemplate places a lesson into a weekday bucket at the times of a defined
// slot. A free-lesson placeholder occupying the same times is displaced, a
// real lesson there is a conflict. The palette color prefers hues unused by
// the current siblings.
func (s *TimetableStore) AddTemplate(day models.Weekday, name string, startMillis, endMillis int64, isFree bool) (models.LessonTemplate, error) {
	if !day.Valid() {
		return models.LessonTemplate{}, appErrors.Clone(appErrors.ErrValidation, "weekday out of range")
	}
	if endMillis <= startMillis {
		return models.LessonTemplate{}, appErrors.ErrInvalidTimes
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.slots) == 0 {
		return models.LessonTemplate{}, appErrors.ErrNoTimetable
	}
	if _, ok := s.lookupSlotLocked(startMillis, endMillis); !ok {
		return models.LessonTemplate{}, appErrors.Clone(appErrors.ErrValidation, "times do not match a defined lesson slot")
	}

	bucket := s.templates[day]
	kept := bucket[:0]
	for _, tpl := range bucket {
		if tpl.StartMillis == startMillis && tpl.EndMillis == endMillis {
			if tpl.IsFreeLesson {
				continue
			}
			return models.LessonTemplate{}, appErrors.Clone(appErrors.ErrConflict, "a lesson already occupies these times")
		}
		kept = append(kept, tpl)
	}

	tpl := models.NewLessonTemplate(name, startMillis, endMillis, s.pickColorLocked(day, kept), isFree)
	s.templates[day] = append(kept, tpl)
	s.fillGapsLocked(day)
	return tpl, nil
}

// UpdateTemplate rewrites a lesson in place. Identity is stable, so weekly
// rows referencing the id survive the edit untouched.
func (s *TimetableStore) UpdateTemplate(id, name string, startMillis, endMillis int64) (models.LessonTemplate, error) {
	if endMillis <= startMillis {
		return models.LessonTemplate{}, appErrors.ErrInvalidTimes
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day, idx := s.findTemplateLocked(id)
	if idx < 0 {
		return models.LessonTemplate{}, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	if s.templates[day][idx].IsFreeLesson {
		return models.LessonTemplate{}, appErrors.Clone(appErrors.ErrValidation, "free lessons cannot be edited")
	}
	if _, ok := s.lookupSlotLocked(startMillis, endMillis); !ok {
		return models.LessonTemplate{}, appErrors.Clone(appErrors.ErrValidation, "times do not match a defined lesson slot")
	}
	for i, sibling := range s.templates[day] {
		if i == idx || sibling.IsFreeLesson {
			continue
		}
		if sibling.StartMillis == startMillis && sibling.EndMillis == endMillis {
			return models.LessonTemplate{}, appErrors.Clone(appErrors.ErrConflict, "a lesson already occupies these times")
		}
	}

	tpl := s.templates[day][idx]
	tpl.Name = name
	tpl.StartMillis = startMillis
	tpl.EndMillis = endMillis
	s.templates[day][idx] = tpl
	s.fillGapsLocked(day)
	return tpl, nil
}

// DeleteTemplate removes a lesson and cascade-deletes every weekly row
// referencing it across all weeks.
func (s *TimetableStore) DeleteTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, idx := s.findTemplateLocked(id)
	if idx < 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	if s.templates[day][idx].IsFreeLesson {
		return appErrors.Clone(appErrors.ErrValidation, "free lessons cannot be deleted")
	}

	s.templates[day] = append(s.templates[day][:idx], s.templates[day][idx+1:]...)
	for weekID, days := range s.weekly {
		for d, rows := range days {
			kept := rows[:0]
			for _, row := range rows {
				if row.TemplateID != id {
					kept = append(kept, row)
				}
			}
			if len(kept) == 0 {
				delete(days, d)
			} else {
				days[d] = kept
			}
		}
		if len(days) == 0 {
			delete(s.weekly, weekID)
		}
	}

	s.fillGapsLocked(day)
	return nil
}

// TemplatesFor returns a weekday's bucket ordered like the day view.
func (s *TimetableStore) TemplatesFor(day models.Weekday) []models.LessonTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.LessonTemplate, len(s.templates[day]))
	copy(out, s.templates[day])
	return out
}

// TemplateByID locates a template and the weekday bucket owning it.
func (s *TimetableStore) TemplateByID(id string) (models.LessonTemplate, models.Weekday, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, idx := s.findTemplateLocked(id)
	if idx < 0 {
		return models.LessonTemplate{}, 0, false
	}
	return s.templates[day][idx], day, true
}

func (s *TimetableStore) findTemplateLocked(id string) (models.Weekday, int) {
	for day := models.Monday; day < models.WeekdayCount; day++ {
		for i, tpl := range s.templates[day] {
			if tpl.ID == id {
				return day, i
			}
		}
	}
	return 0, -1
}

// pickColorLocked chooses a palette color unused by the siblings, falling
// back to a random palette entry once all six are taken.
func (s *TimetableStore) pickColorLocked(day models.Weekday, siblings []models.LessonTemplate) string {
	palette := models.PaletteFor(day)
	used := make(map[string]struct{}, len(siblings))
	for _, tpl := range siblings {
		used[tpl.Color] = struct{}{}
	}
	for _, color := range palette {
		if _, taken := used[color]; !taken {
			return color
		}
	}
	return palette[s.rng.Intn(len(palette))]
}

// ---- Gap filler ----

// fillGapsLocked recomputes a weekday's free-lesson placeholders. All free
// lessons are discarded first, so the pass is idempotent. Slots between the
// first defined slot and the last occupied one get a placeholder when no
// real lesson starts at their time; nothing is filled past the last
// occupied slot.
func (s *TimetableStore) fillGapsLocked(day models.Weekday) {
	bucket := s.templates[day]
	real := bucket[:0]
	for _, tpl := range bucket {
		if !tpl.IsFreeLesson {
			real = append(real, tpl)
		}
	}

	if len(real) == 0 {
		delete(s.templates, day)
		return
	}

	occupied := make(map[int64]struct{}, len(real))
	maxNumber := 0
	for _, tpl := range real {
		occupied[tpl.StartMillis] = struct{}{}
		if n := s.lessonNumberLocked(tpl.StartMillis); n != unnumbered && n > maxNumber {
			maxNumber = n
		}
	}

	filled := append([]models.LessonTemplate(nil), real...)
	for _, slot := range s.slots {
		if slot.LessonNumber > maxNumber {
			continue
		}
		if _, taken := occupied[slot.StartMillis]; taken {
			continue
		}
		free := models.NewLessonTemplate(
			models.FreeLessonName,
			slot.StartMillis,
			slot.EndMillis,
			s.pickColorLocked(day, filled),
			true,
		)
		filled = append(filled, free)
	}

	sort.SliceStable(filled, func(i, j int) bool {
		return s.lessonNumberLocked(filled[i].StartMillis) < s.lessonNumberLocked(filled[j].StartMillis)
	})
	s.templates[day] = filled
}

func (s *TimetableStore) fillAllGapsLocked() {
	for day := models.Monday; day < models.WeekdayCount; day++ {
		if _, ok := s.templates[day]; ok {
			s.fillGapsLocked(day)
		}
	}
}

// FillGaps recomputes the free-lesson placeholders for one weekday.
func (s *TimetableStore) FillGaps(day models.Weekday) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillGapsLocked(day)
}

// ---- Weekly instances ----

// GetOrCreateWeekly finds the note instance for a template within a
// (week, weekday) cell, creating an empty one on first access. Identity is
// stable across calls.
func (s *TimetableStore) GetOrCreateWeekly(templateID, weekID string, day models.Weekday) (models.WeeklyLesson, error) {
	if !day.Valid() {
		return models.WeeklyLesson{}, appErrors.Clone(appErrors.ErrValidation, "weekday out of range")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, idx := s.findTemplateLocked(templateID); idx < 0 {
		return models.WeeklyLesson{}, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
	}
	row, _ := s.getOrCreateWeeklyLocked(templateID, weekID, day)
	return row, nil
}

func (s *TimetableStore) getOrCreateWeeklyLocked(templateID, weekID string, day models.Weekday) (models.WeeklyLesson, bool) {
	for _, row := range s.weekly[weekID][day] {
		if row.TemplateID == templateID {
			return row, false
		}
	}

	row := models.NewWeeklyLesson(templateID, weekID)
	if s.weekly[weekID] == nil {
		s.weekly[weekID] = make(map[models.Weekday][]models.WeeklyLesson)
	}
	s.weekly[weekID][day] = append(s.weekly[weekID][day], row)
	return row, true
}

// MaterializeDay builds the day view: every template in the weekday bucket
// paired with its note instance for the week, ordered by lesson number with
// unnumbered lessons last. The second return value counts the note instances
// created by this call, so callers can skip persisting a pure read.
func (s *TimetableStore) MaterializeDay(weekID string, day models.Weekday) ([]DayEntry, int, error) {
	if !day.Valid() {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "weekday out of range")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.templates[day]
	entries := make([]DayEntry, 0, len(bucket))
	created := 0
	for _, tpl := range bucket {
		weekly, made := s.getOrCreateWeeklyLocked(tpl.ID, weekID, day)
		if made {
			created++
		}
		entry := DayEntry{
			Template: tpl,
			Weekly:   weekly,
			Times:    models.FormatClock(tpl.StartMillis) + " - " + models.FormatClock(tpl.EndMillis),
		}
		if number := s.lessonNumberLocked(tpl.StartMillis); number != unnumbered {
			entry.LessonNumber = number
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return s.lessonNumberLocked(entries[i].Template.StartMillis) <
			s.lessonNumberLocked(entries[j].Template.StartMillis)
	})
	return entries, created, nil
}

// WeeklyByID locates a note instance.
func (s *TimetableStore) WeeklyByID(id string) (models.WeeklyLesson, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, _, _, idx := s.findWeeklyLocked(id)
	if idx < 0 {
		return models.WeeklyLesson{}, false
	}
	return row, true
}

func (s *TimetableStore) findWeeklyLocked(id string) (models.WeeklyLesson, string, models.Weekday, int) {
	for weekID, days := range s.weekly {
		for day, rows := range days {
			for i, row := range rows {
				if row.ID == id {
					return row, weekID, day, i
				}
			}
		}
	}
	return models.WeeklyLesson{}, "", 0, -1
}

func (s *TimetableStore) mutateWeeklyLocked(id string, mutate func(*models.WeeklyLesson)) (models.WeeklyLesson, error) {
	_, weekID, day, idx := s.findWeeklyLocked(id)
	if idx < 0 {
		return models.WeeklyLesson{}, appErrors.Clone(appErrors.ErrNotFound, "weekly lesson not found")
	}
	row := s.weekly[weekID][day][idx]
	mutate(&row)
	s.weekly[weekID][day][idx] = row
	return row, nil
}

// SetNote replaces the note text on a note instance.
func (s *TimetableStore) SetNote(id, note string) (models.WeeklyLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateWeeklyLocked(id, func(row *models.WeeklyLesson) {
		row.Note = note
	})
}

// AddImage attaches a stored image path to a note instance.
func (s *TimetableStore) AddImage(id, path string) (models.WeeklyLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateWeeklyLocked(id, func(row *models.WeeklyLesson) {
		row.ImagePaths = append(append([]string(nil), row.ImagePaths...), path)
	})
}

// RemoveImage detaches an image path. Removing an absent path is a no-op.
func (s *TimetableStore) RemoveImage(id, path string) (models.WeeklyLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateWeeklyLocked(id, func(row *models.WeeklyLesson) {
		kept := make([]string, 0, len(row.ImagePaths))
		for _, p := range row.ImagePaths {
			if p != path {
				kept = append(kept, p)
			}
		}
		row.ImagePaths = kept
	})
}

// SetReminder sets the reminder instant on a note instance.
func (s *TimetableStore) SetReminder(id string, atMillis int64) (models.WeeklyLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateWeeklyLocked(id, func(row *models.WeeklyLesson) {
		row.ReminderMillis = atMillis
	})
}

// ClearReminder removes the reminder from a note instance.
func (s *TimetableStore) ClearReminder(id string) (models.WeeklyLesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateWeeklyLocked(id, func(row *models.WeeklyLesson) {
		row.ReminderMillis = 0
	})
}

// ---- Lifecycle ----

// Snapshot deep-copies the store contents.
func (s *TimetableStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Slots:     make([]models.LessonTimeTemplate, len(s.slots)),
		Templates: make(map[models.Weekday][]models.LessonTemplate, len(s.templates)),
		Weekly:    make(map[string]map[models.Weekday][]models.WeeklyLesson, len(s.weekly)),
	}
	copy(snap.Slots, s.slots)
	for day, bucket := range s.templates {
		out := make([]models.LessonTemplate, len(bucket))
		copy(out, bucket)
		snap.Templates[day] = out
	}
	for weekID, days := range s.weekly {
		outDays := make(map[models.Weekday][]models.WeeklyLesson, len(days))
		for day, rows := range days {
			out := make([]models.WeeklyLesson, len(rows))
			copy(out, rows)
			for i := range out {
				out[i].ImagePaths = append([]string(nil), rows[i].ImagePaths...)
			}
			outDays[day] = out
		}
		snap.Weekly[weekID] = outDays
	}
	return snap
}

// Restore replaces the store contents wholesale, as after a load.
func (s *TimetableStore) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots = append([]models.LessonTimeTemplate(nil), snap.Slots...)
	s.sortSlotsLocked()

	s.templates = make(map[models.Weekday][]models.LessonTemplate, len(snap.Templates))
	for day, bucket := range snap.Templates {
		if !day.Valid() || len(bucket) == 0 {
			continue
		}
		s.templates[day] = append([]models.LessonTemplate(nil), bucket...)
	}

	s.weekly = make(map[string]map[models.Weekday][]models.WeeklyLesson, len(snap.Weekly))
	for weekID, days := range snap.Weekly {
		outDays := make(map[models.Weekday][]models.WeeklyLesson, len(days))
		for day, rows := range days {
			if !day.Valid() || len(rows) == 0 {
				continue
			}
			outDays[day] = append([]models.WeeklyLesson(nil), rows...)
		}
		if len(outDays) > 0 {
			s.weekly[weekID] = outDays
		}
	}
}

// Clear wipes lessons, templates, and weekly notes; slot definitions go too
// when includeSlots is set.
func (s *TimetableStore) Clear(includeSlots bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates = make(map[models.Weekday][]models.LessonTemplate)
	s.weekly = make(map[string]map[models.Weekday][]models.WeeklyLesson)
	if includeSlots {
		s.slots = nil
	}
}
