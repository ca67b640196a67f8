package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Kryak-vak/event-face-service/internal/config"
	"github.com/Kryak-vak/event-face-service/internal/model"
)

// NotificationClient delivers one notification payload to the external
// gateway. Every request carries bearer credentials and the owner
// identifier; transient failures are retried under the shared policy.
type NotificationClient struct {
	http  *http.Client
	cfg   config.Gateway
	retry RetryPolicy
}

// NewNotificationClient constructs a NotificationClient.
func NewNotificationClient(cfg config.Gateway, retry RetryPolicy) *NotificationClient {
	return &NotificationClient{
		http:  &http.Client{Timeout: cfg.Timeout},
		cfg:   cfg,
		retry: retry,
	}
}

type notificationRequest struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Message string `json:"message"`
	OwnerID string `json:"owner_id"`
}

// Send posts the notification and expects a 2xx. Network failures and
// non-2xx responses are transient; after the retry budget they propagate.
func (c *NotificationClient) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(notificationRequest{
		ID:      n.ID,
		Email:   n.Email,
		Message: n.Message,
		OwnerID: c.cfg.OwnerID,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build notification request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: send notification: %v", ErrTransient, err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: notification gateway returned %d", ErrTransient, resp.StatusCode)
		}
		return nil
	})
}
