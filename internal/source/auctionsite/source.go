package auctionsite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"auction_scout/internal/domain"
)

const (
	SourceID   = "auctionsite"
	SourceName = "Estate Auction Listings"
)

// Config holds auction site source configuration.
type Config struct {
	BaseURL        string
	ListingPath    string
	MaxPages       int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Fetcher retrieves the rendered HTML of one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Source pages through an auction site's listing pages.
type Source struct {
	fetcher        Fetcher
	listingURL     *url.URL
	maxPages       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func New(cfg Config, fetcher Fetcher, logger *slog.Logger) (*Source, error) {
	listingURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + cfg.ListingPath)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if listingURL.Scheme == "" || listingURL.Host == "" {
		return nil, fmt.Errorf("listing url %q is not absolute", listingURL)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Source{
		fetcher:        fetcher,
		listingURL:     listingURL,
		maxPages:       cfg.MaxPages,
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
		now:            time.Now,
	}, nil
}

func (s *Source) ID() string {
	return SourceID
}

func (s *Source) Name() string {
	return SourceName
}

// PageURL returns the listing page url for a 1-based page number.
func (s *Source) PageURL(number int) string {
	u := *s.listingURL
	q := u.Query()
	q.Set("page", strconv.Itoa(number))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage fetches one listing page. It returns domain.ErrNoMorePages past
// max pages or when the site reports a missing page beyond the first, and a
// *domain.FetchFailure once retries are exhausted.
func (s *Source) FetchPage(ctx context.Context, number int) (*domain.RawPage, error) {
	if number < 1 || (s.maxPages > 0 && number > s.maxPages) {
		return nil, domain.ErrNoMorePages
	}

	pageURL := s.PageURL(number)

	var (
		content string
		err     error
	)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		content, err = s.fetcher.Fetch(ctx, pageURL)
		if err == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var status *StatusError
		if errors.As(err, &status) {
			if status.Code == http.StatusNotFound && number > 1 {
				return nil, domain.ErrNoMorePages
			}
			if !status.retryable() {
				break
			}
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"url", pageURL,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return nil, &domain.FetchFailure{URL: pageURL, Reason: err.Error(), Err: err}
	}

	s.logger.Debug("fetched page", "page", number, "url", pageURL, "bytes", len(content))

	return &domain.RawPage{
		URL:       pageURL,
		Number:    number,
		Content:   content,
		FetchedAt: s.now(),
	}, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}
