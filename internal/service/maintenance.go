package service

import (
	"context"

	"go.uber.org/zap"
)

// RunImageMaintenance sweeps every image reference on every weekly row. A
// path whose file is gone is dropped from the row; a file that no longer
// parses as an image is deleted and dropped. Changes are persisted.
func (s *TimetableService) RunImageMaintenance(ctx context.Context) error {
	snap := s.store.Snapshot()

	pruned := 0
	for _, days := range snap.Weekly {
		for _, rows := range days {
			for _, row := range rows {
				for _, path := range row.ImagePaths {
					switch {
					case !s.images.Exists(path):
						s.logger.Warn("image file missing, dropping reference",
							zap.String("lesson_id", row.ID), zap.String("path", path))
					case !s.images.Decodable(path):
						s.logger.Warn("image file corrupt, deleting",
							zap.String("lesson_id", row.ID), zap.String("path", path))
						if err := s.images.Delete(path); err != nil {
							s.logger.Warn("failed to delete corrupt image", zap.String("path", path), zap.Error(err))
						}
					default:
						continue
					}
					if _, err := s.store.RemoveImage(row.ID, path); err != nil {
						// row vanished mid-sweep, nothing left to prune
						continue
					}
					pruned++
				}
			}
		}
	}

	if pruned == 0 {
		return nil
	}

	s.metrics.RecordImagesPruned(pruned)
	s.logger.Info("image maintenance pruned references", zap.Int("count", pruned))
	return s.SaveNow(ctx)
}
