package crawler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gocolly/colly/v2"
	"github.com/jerling2/handshake-pipeline/internal/models"
)

// CollyFetcher is the default Fetcher, built on colly. A fresh
// *colly.Collector clone backs each call to Fetch so concurrent callers
// (E1/E2's dispatcher) never share mutable callback state.
type CollyFetcher struct {
	base   *colly.Collector
	policy Policy
	auth   *Auth
}

// NewCollyFetcher builds a CollyFetcher from policy, authenticating fetches
// with the cookies auth currently holds (nil disables authentication).
func NewCollyFetcher(policy Policy, auth *Auth) (*CollyFetcher, error) {
	if policy.Timeout <= 0 {
		return nil, fmt.Errorf("crawler: timeout must be positive, got %v", policy.Timeout)
	}
	c := colly.NewCollector()
	c.SetRequestTimeout(policy.Timeout)
	if policy.UserAgent != "" {
		c.UserAgent = policy.UserAgent
	}
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: policy.RequestDelay}); err != nil {
		return nil, fmt.Errorf("crawler: set rate limit: %w", err)
	}
	return &CollyFetcher{base: c, policy: policy, auth: auth}, nil
}

// Fetch retrieves one page. Authentication cookies, if auth is configured,
// are attached to the cloned collector before the request is made.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (models.FetchedPage, error) {
	c := f.base.Clone()
	if f.auth != nil {
		if cookies := f.auth.Cookies(); len(cookies) > 0 {
			if err := c.SetCookies(rawURL, cookies); err != nil {
				return models.FetchedPage{}, fmt.Errorf("crawler: set cookies: %w", err)
			}
		}
	}

	var page models.FetchedPage
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		page = models.FetchedPage{URL: rawURL, HTML: string(r.Body), Status: r.StatusCode}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = &models.StageError{Stage: "fetch", URL: rawURL, Err: fmt.Errorf("status=%d: %w", status, err)}
	})

	if err := ctx.Err(); err != nil {
		return models.FetchedPage{}, err
	}
	if err := c.Request(http.MethodGet, rawURL, nil, nil, nil); err != nil {
		return models.FetchedPage{}, &models.StageError{Stage: "fetch", URL: rawURL, Err: err}
	}
	c.Wait()
	if fetchErr != nil {
		return models.FetchedPage{}, fetchErr
	}
	return page, nil
}
