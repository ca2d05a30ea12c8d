package ingest

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
)

const (
	maxFetchRetries  = 3
	rateLimitBackoff = 60 * time.Second
)

// SourceClient downloads league-season CSV files from the configured
// upstream, spacing requests and backing off on 429s. All calls run
// through a circuit breaker.
type SourceClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	requestGap time.Duration
	logger     *logrus.Entry

	// gapMu serializes the gap bookkeeping: the client is shared by
	// every pipeline worker and the admin ingest endpoint.
	gapMu       sync.Mutex
	lastRequest time.Time
}

type SourceOptions struct {
	BaseURL    string
	Timeout    time.Duration
	RequestGap time.Duration
	VerifySSL  bool
	Threshold  int
}

func NewSourceClient(opts SourceOptions, logger *logrus.Logger) *SourceClient {
	transport := &http.Transport{}
	if !opts.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	entry := logger.WithField("component", "ingest_source")
	settings := gobreaker.Settings{
		Name:        "csv-upstream",
		MaxRequests: uint32(opts.Threshold),
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	return &SourceClient{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout, Transport: transport},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		requestGap: opts.RequestGap,
		logger:     entry,
	}
}

// SeasonFile is one downloaded league-season CSV.
type SeasonFile struct {
	URL      string
	Encoding string
	Body     []byte
}

// SeasonURL renders the football-data.co.uk style path, e.g.
// <base>/2324/E0.csv for season "2324" of league "E0".
func (c *SourceClient) SeasonURL(leagueCode, season string) string {
	return fmt.Sprintf("%s/%s/%s.csv", c.baseURL, season, leagueCode)
}

// FetchSeason downloads one season file, retrying transient upstream
// failures with backoff and honoring the inter-request gap.
func (c *SourceClient) FetchSeason(ctx context.Context, leagueCode, season string) (*SeasonFile, error) {
	url := c.SeasonURL(leagueCode, season)

	var lastErr error
	for attempt := 0; attempt < maxFetchRetries; attempt++ {
		if err := c.waitGap(ctx); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeCancelled, "fetch cancelled")
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetchOnce(ctx, url)
		})
		if err == nil {
			return result.(*SeasonFile), nil
		}
		lastErr = err

		if apperrors.HasCode(err, apperrors.CodeRateLimited) {
			c.logger.WithField("url", url).Warn("Rate limited by upstream, backing off")
			select {
			case <-time.After(rateLimitBackoff):
			case <-ctx.Done():
				return nil, apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "fetch cancelled")
			}
			continue
		}
		if !apperrors.HasCode(err, apperrors.CodeUpstreamUnavailable) {
			return nil, err
		}
		// Exponential-ish backoff for transient upstream failures.
		select {
		case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
		case <-ctx.Done():
			return nil, apperrors.Wrap(ctx.Err(), apperrors.CodeCancelled, "fetch cancelled")
		}
	}
	return nil, apperrors.Wrap(lastErr, apperrors.CodeUpstreamUnavailable,
		"giving up on %s after %d attempts", url, maxFetchRetries)
}

func (c *SourceClient) fetchOnce(ctx context.Context, url string) (*SeasonFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "building request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstreamUnavailable, "fetching %s", url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.New(apperrors.CodeRateLimited, "429 from %s", url)
	case resp.StatusCode >= 500:
		return nil, apperrors.New(apperrors.CodeUpstreamUnavailable, "%d from %s", resp.StatusCode, url)
	case resp.StatusCode != http.StatusOK:
		return nil, apperrors.New(apperrors.CodeUpstreamUnavailable, "unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUpstreamUnavailable, "reading body of %s", url)
	}

	declared := ""
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if _, params, err := mime.ParseMediaType(ct); err == nil {
			declared = params["charset"]
		}
	}
	return &SeasonFile{URL: url, Encoding: declared, Body: body}, nil
}

func (c *SourceClient) waitGap(ctx context.Context) error {
	c.gapMu.Lock()
	defer c.gapMu.Unlock()

	if c.lastRequest.IsZero() {
		c.lastRequest = time.Now()
		return nil
	}
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.requestGap {
		select {
		case <-time.After(c.requestGap - elapsed):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastRequest = time.Now()
	return nil
}
