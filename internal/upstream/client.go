package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	appErrors "github.com/studtime/studtime/pkg/errors"
)

// RawWeekPayload is one week of upstream data: regular group lessons plus
// individual teaching stream lessons.
type RawWeekPayload struct {
	Lessons    []models.RawLesson `json:"lessons"`
	IETLessons []models.RawLesson `json:"iet_lessons"`
}

// Client mirrors one week of the university scheduling source. A failure is
// a typed sync error; callers never see partial data.
type Client interface {
	FetchWeek(ctx context.Context, sessionToken string, year, week int, groupID string) (*RawWeekPayload, error)
}

// HTTPClient is the production upstream adapter.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds the adapter with a caller-supplied timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FetchWeek loads raw lessons for one group and week.
func (c *HTTPClient) FetchWeek(ctx context.Context, sessionToken string, year, week int, groupID string) (*RawWeekPayload, error) {
	url := fmt.Sprintf("%s/groups/%s/schedule?year=%d&week=%d", c.baseURL, groupID, year, week)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamSync.Code, appErrors.ErrUpstreamSync.Status, "failed to build upstream request")
	}
	if sessionToken != "" {
		req.Header.Set("Cookie", "session="+sessionToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamSync.Code, appErrors.ErrUpstreamSync.Status, "upstream request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, appErrors.Clone(appErrors.ErrSessionExpired, "")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrUpstreamSync, fmt.Sprintf("upstream returned status %d", resp.StatusCode))
	}

	var payload RawWeekPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamSync.Code, appErrors.ErrUpstreamSync.Status, "failed to decode upstream payload")
	}
	return &payload, nil
}

// NoopSessionProvider treats every session as valid; useful for sources
// exposing public, unauthenticated schedules.
type NoopSessionProvider struct{}

// EnsureValidSession always reports a valid session.
func (NoopSessionProvider) EnsureValidSession(_ context.Context, _ *models.User) (bool, error) {
	return true, nil
}
