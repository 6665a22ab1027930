package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/pamoka/timetable-api/internal/repository"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
)

// DefaultLanguage is used until the user picks one.
const DefaultLanguage = "en"

var supportedLanguages = map[string]struct{}{
	"en": {},
	"lt": {},
	"es": {},
}

// SettingsService persists the small user settings in the blob store.
type SettingsService struct {
	blobs  blobStore
	logger *zap.Logger
}

// NewSettingsService constructs the service.
func NewSettingsService(blobs blobStore, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{blobs: blobs, logger: logger}
}

// Language returns the selected language code, defaulting to English.
func (s *SettingsService) Language(ctx context.Context) (string, error) {
	code, err := s.blobs.Get(ctx, repository.KeyLanguage)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read language")
	}
	if _, ok := supportedLanguages[code]; !ok {
		return DefaultLanguage, nil
	}
	return code, nil
}

// SetLanguage stores the selected language code.
func (s *SettingsService) SetLanguage(ctx context.Context, code string) error {
	if _, ok := supportedLanguages[code]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported language")
	}
	if err := s.blobs.Set(ctx, repository.KeyLanguage, code); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store language")
	}
	s.logger.Info("language updated", zap.String("language", code))
	return nil
}
