// Package crawler provides the default implementation of spec.md's
// out-of-scope "black-box fetch(url) -> html" collaborator, plus a
// bounded-concurrency dispatcher and session-file-backed authentication.
package crawler

import (
	"context"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/models"
)

// Fetcher retrieves one page. Implementations carry their own auth/session
// state; the pipeline treats fetch failures as Transient errors eligible for
// backoff.Retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.FetchedPage, error)
}

// Policy tunes a Fetcher's HTTP behavior.
type Policy struct {
	UserAgent    string
	Timeout      time.Duration
	RequestDelay time.Duration
	MaxRetries   int
}
