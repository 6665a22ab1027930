package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pamoka/timetable-api/internal/store"
	"github.com/pamoka/timetable-api/pkg/jobs"
)

func jobOf(jobType string) jobs.Job {
	return jobs.Job{ID: "test-job", Type: jobType}
}

// memBlobs is an in-memory blob store for tests.
type memBlobs struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string]string)}
}

func (m *memBlobs) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", errors.New("backend unavailable")
	}
	return m.data[key], nil
}

func (m *memBlobs) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBlobs) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memBlobs) get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// fakeImages tracks image files without touching the disk.
type fakeImages struct {
	mu        sync.Mutex
	seq       int
	existing  map[string]bool
	decodable map[string]bool
	deleted   []string
}

func newFakeImages() *fakeImages {
	return &fakeImages{
		existing:  make(map[string]bool),
		decodable: make(map[string]bool),
	}
}

func (f *fakeImages) SaveBytes(_ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	path := fmt.Sprintf("lesson_image_%d.img", f.seq)
	f.existing[path] = true
	f.decodable[path] = true
	return path, nil
}

func (f *fakeImages) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[path]
}

func (f *fakeImages) Delete(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.existing, path)
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeImages) Decodable(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decodable[path]
}

func (f *fakeImages) add(path string, exists, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existing[path] = exists
	f.decodable[path] = ok
}

// recordScheduler records scheduling calls.
type recordScheduler struct {
	mu        sync.Mutex
	scheduled map[string]Reminder
	cancelled []string
}

func newRecordScheduler() *recordScheduler {
	return &recordScheduler{scheduled: make(map[string]Reminder)}
}

func (r *recordScheduler) ScheduleOneShot(_ time.Time, reminder Reminder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[reminder.LessonID] = reminder
}

func (r *recordScheduler) Cancel(lessonID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, lessonID)
	delete(r.scheduled, lessonID)
}

func (r *recordScheduler) pendingFor(lessonID string) (Reminder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reminder, ok := r.scheduled[lessonID]
	return reminder, ok
}

func (r *recordScheduler) cancelCount(lessonID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, id := range r.cancelled {
		if id == lessonID {
			count++
		}
	}
	return count
}

// newTestService returns a bootstrapped service over empty blobs, ready for
// mutations; tests that seed blobs first run Bootstrap again afterwards.
func newTestService() (*TimetableService, *memBlobs, *fakeImages, *recordScheduler) {
	blobs := newMemBlobs()
	images := newFakeImages()
	scheduler := newRecordScheduler()
	svc := NewTimetableService(store.NewTimetableStore(), blobs, images, scheduler, NewMetricsService(), zap.NewNop())
	svc.Bootstrap(context.Background())
	return svc, blobs, images, scheduler
}
