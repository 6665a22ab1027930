package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pamoka/timetable-api/internal/codec"
	"github.com/pamoka/timetable-api/internal/models"
	"github.com/pamoka/timetable-api/internal/repository"
	"github.com/pamoka/timetable-api/internal/store"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
)

func seedBlobs(blobs *memBlobs, templates map[models.Weekday][]models.LessonTemplate, weekly map[string]map[models.Weekday][]models.WeeklyLesson) {
	blobs.data[repository.KeyTemplates] = codec.EncodeTemplates(templates)
	blobs.data[repository.KeyWeekly] = codec.EncodeWeekly(weekly)
}

func TestBootstrapRoundTrip(t *testing.T) {
	ctx := context.Background()
	first, blobs, _, _ := newTestService()

	_, err := first.AddSlot(ctx, 1, 1_000_000, 1_500_000)
	require.NoError(t, err)
	tpl, err := first.AddTemplate(ctx, models.Monday, "Math", 1_000_000, 1_500_000)
	require.NoError(t, err)
	entries, err := first.DayView(ctx, "2026-03-02", models.Monday)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = first.SetNote(ctx, entries[0].Weekly.ID, "homework")
	require.NoError(t, err)

	second := NewTimetableService(store.NewTimetableStore(), blobs, newFakeImages(), newRecordScheduler(), NewMetricsService(), nil)
	report := second.Bootstrap(ctx)

	assert.Equal(t, StateDone, report.State)
	assert.Zero(t, report.SkippedRecords)
	assert.Zero(t, report.RepairedRows)

	got, _, found := second.store.TemplateByID(tpl.ID)
	require.True(t, found)
	assert.Equal(t, "Math", got.Name)
	row, found := second.store.WeeklyByID(entries[0].Weekly.ID)
	require.True(t, found)
	assert.Equal(t, "homework", row.Note)
	assert.True(t, second.Ready())
}

func TestBootstrapRepairsDanglingRows(t *testing.T) {
	ctx := context.Background()
	svc, blobs, _, _ := newTestService()

	tpl := models.NewLessonTemplate("Math", 1_000_000, 1_500_000, "#1E3A8A", false)
	orphan := models.WeeklyLesson{
		ID:             "w-orphan",
		TemplateID:     "ghost",
		Note:           "keep me",
		ImagePaths:     []string{"lesson_image_a.img"},
		WeekIdentifier: "2026-03-02",
		ReminderMillis: 42,
	}
	seedBlobs(blobs,
		map[models.Weekday][]models.LessonTemplate{models.Monday: {tpl}},
		map[string]map[models.Weekday][]models.WeeklyLesson{
			"2026-03-02": {models.Tuesday: {orphan}},
		})

	report := svc.Bootstrap(ctx)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 1, report.RepairedRows)
	assert.Zero(t, report.DroppedRows)

	row, found := svc.store.WeeklyByID("w-orphan")
	require.True(t, found)
	assert.Equal(t, tpl.ID, row.TemplateID)
	assert.Equal(t, "keep me", row.Note)
	assert.Equal(t, []string{"lesson_image_a.img"}, row.ImagePaths)
	assert.Equal(t, int64(42), row.ReminderMillis)

	// the correction is persisted immediately
	persisted, skipped := codec.DecodeWeekly(blobs.get(repository.KeyWeekly))
	require.Zero(t, skipped)
	require.Len(t, persisted["2026-03-02"][models.Tuesday], 1)
	assert.Equal(t, tpl.ID, persisted["2026-03-02"][models.Tuesday][0].TemplateID)
}

func TestBootstrapDropsRowsWithNoAdopter(t *testing.T) {
	ctx := context.Background()
	svc, blobs, _, _ := newTestService()

	orphan := models.WeeklyLesson{ID: "w-orphan", TemplateID: "ghost", WeekIdentifier: "2026-03-02"}
	seedBlobs(blobs, nil,
		map[string]map[models.Weekday][]models.WeeklyLesson{
			"2026-03-02": {models.Monday: {orphan}},
		})

	report := svc.Bootstrap(ctx)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 1, report.DroppedRows)
	_, found := svc.store.WeeklyByID("w-orphan")
	assert.False(t, found)
	assert.Empty(t, blobs.get(repository.KeyWeekly))
}

func TestBootstrapSkipsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	svc, blobs, _, _ := newTestService()

	blobs.data[repository.KeySlots] = "id|1|1000|2000|||broken-record"

	report := svc.Bootstrap(ctx)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 1, report.SkippedRecords)
	assert.Len(t, svc.ListSlots(ctx), 1)
}

func TestBootstrapBackendErrorLeavesBlobsIntact(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	tpl := models.NewLessonTemplate("Math", 1_000_000, 1_500_000, "#1E3A8A", false)
	seedBlobs(blobs, map[models.Weekday][]models.LessonTemplate{models.Monday: {tpl}}, nil)
	seeded := blobs.get(repository.KeyTemplates)
	blobs.failGet = true

	svc := NewTimetableService(store.NewTimetableStore(), blobs, newFakeImages(), newRecordScheduler(), NewMetricsService(), nil)
	report := svc.Bootstrap(ctx)

	assert.Equal(t, StateFailed, report.State)
	assert.False(t, svc.Ready(), "an unreadable backend must not report ready")

	// a mutation before a successful load must not touch the stored blobs
	_, err := svc.AddSlot(ctx, 1, 1_000_000, 1_500_000)
	require.NoError(t, err)
	err = svc.SaveNow(ctx)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)

	blobs.failGet = false
	assert.Equal(t, seeded, blobs.get(repository.KeyTemplates))

	// once the backend is reachable a retry loads the intact data
	report = svc.Bootstrap(ctx)
	assert.Equal(t, StateDone, report.State)
	got, _, found := svc.store.TemplateByID(tpl.ID)
	require.True(t, found)
	assert.Equal(t, "Math", got.Name)
}

func TestBootstrapMaterializesCurrentWeek(t *testing.T) {
	ctx := context.Background()
	svc, blobs, _, _ := newTestService()

	tpl := models.NewLessonTemplate("Math", 1_000_000, 1_500_000, "#1E3A8A", false)
	seedBlobs(blobs, map[models.Weekday][]models.LessonTemplate{models.Monday: {tpl}}, nil)

	report := svc.Bootstrap(ctx)
	require.Equal(t, StateDone, report.State)

	row, err := svc.store.GetOrCreateWeekly(tpl.ID, svc.CurrentWeekID(), models.Monday)
	require.NoError(t, err)

	// the row was created during bootstrap, so getOrCreate found it persisted
	persisted, _ := codec.DecodeWeekly(blobs.get(repository.KeyWeekly))
	require.Len(t, persisted[svc.CurrentWeekID()][models.Monday], 1)
	assert.Equal(t, row.ID, persisted[svc.CurrentWeekID()][models.Monday][0].ID)
}

func TestBootstrapReschedulesLiveReminders(t *testing.T) {
	ctx := context.Background()
	svc, blobs, _, scheduler := newTestService()

	tpl := models.NewLessonTemplate("Math", 1_000_000, 1_500_000, "#1E3A8A", false)
	future := svc.now().UnixMilli() + int64(3_600_000)
	live := models.WeeklyLesson{ID: "w-live", TemplateID: tpl.ID, WeekIdentifier: "2026-03-02", ReminderMillis: future}
	stale := models.WeeklyLesson{ID: "w-stale", TemplateID: tpl.ID, WeekIdentifier: "2026-03-02", ReminderMillis: 1}
	seedBlobs(blobs,
		map[models.Weekday][]models.LessonTemplate{models.Monday: {tpl}},
		map[string]map[models.Weekday][]models.WeeklyLesson{
			"2026-03-02": {models.Monday: {live, stale}},
		})

	svc.Bootstrap(ctx)

	reminder, ok := scheduler.pendingFor("w-live")
	require.True(t, ok)
	assert.Equal(t, "Math", reminder.LessonName)
	_, ok = scheduler.pendingFor("w-stale")
	assert.False(t, ok, "expired reminders must not be rescheduled")
}
