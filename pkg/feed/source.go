package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "feed")

// maxBodyBytes caps the feed download. The registry is a few hundred rows;
// anything far beyond that is not the file we expect.
const maxBodyBytes = 16 << 20

//go:generate mockgen -destination=../mocks/mock_source.go -package=mocks mesh-node-map/pkg/feed Source

// Source delivers the raw feed text.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// TransportError reports a failed download: either the request did not
// complete (Err set) or the endpoint answered with a non-2xx Status.
type TransportError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPSource downloads the feed with a cache-busting query parameter so
// intermediate proxies never hand back a stale copy.
type HTTPSource struct {
	URL    string
	Client *http.Client
	now    func() time.Time
}

// NewHTTPSource builds a source with its own client and timeout.
func NewHTTPSource(rawURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		URL:    rawURL,
		Client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Fetch performs one GET. Anything other than a 2xx body is a *TransportError.
func (s *HTTPSource) Fetch(ctx context.Context) (string, error) {
	target, err := s.bustedURL()
	if err != nil {
		return "", &TransportError{URL: s.URL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &TransportError{URL: s.URL, Err: err}
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &TransportError{URL: s.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &TransportError{URL: s.URL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &TransportError{URL: s.URL, Status: resp.StatusCode, Err: err}
	}
	log.Debugf("fetched %d bytes from %s", len(body), s.URL)
	return string(body), nil
}

func (s *HTTPSource) bustedURL() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", err
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
