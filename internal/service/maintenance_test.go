package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pamoka/timetable-api/internal/codec"
	"github.com/pamoka/timetable-api/internal/models"
	"github.com/pamoka/timetable-api/internal/repository"
)

func TestImageMaintenancePrunesBrokenReferences(t *testing.T) {
	ctx := context.Background()
	svc, blobs, images, _ := newTestService()
	_, row := seedLessonWithNote(t, svc)

	images.add("good.img", true, true)
	images.add("missing.img", false, false)
	images.add("corrupt.img", true, false)
	for _, path := range []string{"good.img", "missing.img", "corrupt.img"} {
		_, err := svc.store.AddImage(row.ID, path)
		require.NoError(t, err)
	}

	require.NoError(t, svc.RunImageMaintenance(ctx))

	kept, err := svc.GetWeekly(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"good.img"}, kept.ImagePaths)
	assert.Contains(t, images.deleted, "corrupt.img")
	assert.NotContains(t, images.deleted, "missing.img")

	persisted, _ := codec.DecodeWeekly(blobs.get(repository.KeyWeekly))
	assert.Equal(t, []string{"good.img"}, persisted["2026-03-02"][models.Monday][0].ImagePaths)
}

func TestImageMaintenanceNoChangesNoSave(t *testing.T) {
	ctx := context.Background()
	svc, blobs, images, _ := newTestService()
	_, row := seedLessonWithNote(t, svc)

	images.add("good.img", true, true)
	_, err := svc.store.AddImage(row.ID, "good.img")
	require.NoError(t, err)

	blobs.data = map[string]string{}
	require.NoError(t, svc.RunImageMaintenance(ctx))

	assert.Empty(t, blobs.get(repository.KeyWeekly), "an untouched store must not be re-persisted")
}
