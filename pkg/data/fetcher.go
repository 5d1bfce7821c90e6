// Package data provides fetching, in-memory snapshot storage and periodic
// refresh of radio channel schedules.
package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	pageSize   = "1000"
	dateLayout = "2006-01-02"
)

var (
	// ErrUnexpectedStatus is returned when the HTTP response has a non-2xx status code.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrMalformedURL is returned when a document URL cannot be parsed or is not absolute.
	ErrMalformedURL = errors.New("malformed URL")
)

// NetworkError reports a request that failed before a response was received.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DocumentFetcher retrieves one raw document.
type DocumentFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Fetcher retrieves documents over HTTP. It holds no state between calls.
type Fetcher struct {
	client    *http.Client
	userAgent string
	logger    *logrus.Logger
}

// NewFetcher creates a new fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration, userAgent string, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch issues a single GET for rawURL and returns the response body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrMalformedURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	req.Header.Set("Accept", "application/xml")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.WithField("url", rawURL).Debug("Fetching document")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return body, nil
}

// ChannelsURL returns the channel list endpoint under base, or the single
// channel endpoint when channelID is not empty.
func ChannelsURL(base, channelID string) string {
	base = strings.TrimRight(base, "/") + "/channels/"
	if channelID != "" {
		base += url.PathEscape(channelID) + "/"
	}
	return base + "?pagination=false&size=" + pageSize
}

// ScheduleURL returns the schedule endpoint of a channel for one date. The
// date and paging parameters are merged into the channel's own query.
func ScheduleURL(scheduleURL string, date time.Time) (string, error) {
	u, err := url.Parse(scheduleURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	q := u.Query()
	q.Set("date", date.Format(dateLayout))
	q.Set("pagination", "false")
	q.Set("size", pageSize)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
