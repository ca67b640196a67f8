package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Kryak-vak/event-face-service/internal/config"
	"github.com/Kryak-vak/event-face-service/internal/model"
)

// ProviderClient fetches pages of the upstream event feed.
type ProviderClient struct {
	http  *http.Client
	retry RetryPolicy
}

// NewProviderClient constructs a ProviderClient.
func NewProviderClient(cfg config.Provider, retry RetryPolicy) *ProviderClient {
	return &ProviderClient{
		http:  &http.Client{Timeout: cfg.Timeout},
		retry: retry,
	}
}

// FetchPage issues one GET for a feed page and returns its records plus the
// next-page URL (empty on the last page). Network failures and non-2xx
// responses are retried under the shared policy, then propagate.
func (c *ProviderClient) FetchPage(ctx context.Context, url string) (model.ProviderPage, error) {
	var page model.ProviderPage

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build page request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: fetch page: %v", ErrTransient, err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: provider returned %d", ErrTransient, resp.StatusCode)
		}

		page = model.ProviderPage{}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return fmt.Errorf("decode provider page: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.ProviderPage{}, err
	}
	return page, nil
}
