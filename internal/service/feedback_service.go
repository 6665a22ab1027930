package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pamoka/timetable-api/internal/repository"
	"github.com/pamoka/timetable-api/pkg/config"
	appErrors "github.com/pamoka/timetable-api/pkg/errors"
)

const (
	feedbackMinLen = 5
	feedbackMaxLen = 200
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedbackService submits free-text feature requests to a configured form
// endpoint, rate-limited through a timestamp persisted in the blob store.
type FeedbackService struct {
	blobs  blobStore
	client httpDoer
	cfg    config.FeedbackConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewFeedbackService constructs the service.
func NewFeedbackService(blobs blobStore, cfg config.FeedbackConfig, logger *zap.Logger) *FeedbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FeedbackService{
		blobs:  blobs,
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Submit validates, rate-limits, and posts a feature request. The submission
// timestamp is persisted only after a successful post.
func (s *FeedbackService) Submit(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if len(message) < feedbackMinLen {
		return appErrors.Clone(appErrors.ErrValidation, "message too short")
	}
	if len(message) > feedbackMaxLen {
		return appErrors.Clone(appErrors.ErrValidation, "message too long")
	}

	lastRaw, err := s.blobs.Get(ctx, repository.KeyFeedbackSentAt)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read submission timestamp")
	}
	if lastRaw != "" {
		if last, parseErr := strconv.ParseInt(lastRaw, 10, 64); parseErr == nil {
			if s.now().Sub(time.UnixMilli(last)) < s.cfg.MinInterval {
				return appErrors.ErrTooManyRequests
			}
		}
	}

	if s.cfg.Endpoint == "" {
		return appErrors.Clone(appErrors.ErrInternal, "feature requests are not configured")
	}

	form := url.Values{}
	form.Set(s.cfg.MessageField, message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build feedback request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit feature request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return appErrors.Wrap(
			fmt.Errorf("feedback endpoint returned %d", resp.StatusCode),
			appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "feature request rejected")
	}

	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.blobs.Set(ctx, repository.KeyFeedbackSentAt, stamp); err != nil {
		s.logger.Warn("failed to persist submission timestamp", zap.Error(err))
	}
	s.logger.Info("feature request submitted", zap.Int("length", len(message)))
	return nil
}
