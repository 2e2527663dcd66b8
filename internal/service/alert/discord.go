package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
)

const (
	// maxContentLength is the Discord message content limit, minus markup headroom.
	maxContentLength = 1975
	// deliveryTimeout bounds a single webhook POST.
	deliveryTimeout = 5 * time.Second
	// deliveryTries bounds retry attempts per notification.
	deliveryTries = 3
)

// errDeliveryRejected is returned when the webhook answers with a non-2xx status.
var errDeliveryRejected = errors.New("webhook rejected notification")

// Discord posts notifications to a Discord webhook as formatted messages.
type Discord struct {
	// webhookURL is the incoming-webhook endpoint.
	webhookURL string
	// client performs the HTTP requests.
	client *http.Client
}

// NewDiscord creates a notifier posting to the given webhook URL.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: deliveryTimeout,
		},
	}
}

// discordPayload is the webhook request body.
type discordPayload struct {
	Content string `json:"content"`
}

// Notify posts the message with its severity as a bold header, retrying
// transient failures a few times before giving up.
func (d *Discord) Notify(ctx context.Context, severity Severity, message string) error {
	content := fmt.Sprintf("**%s**```%s```", severity, message)
	if len(content) > maxContentLength {
		content = content[:maxContentLength]
	}

	body, err := json.Marshal(discordPayload{Content: content})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	operation := func() (struct{}, error) {
		return struct{}{}, d.post(ctx, body)
	}

	if _, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(deliveryTries)); err != nil {
		return err
	}

	return nil
}

// post performs one delivery attempt.
func (d *Discord) post(ctx context.Context, body []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := d.client.Do(request)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		failure := fmt.Errorf("%w: %s", errDeliveryRejected, response.Status)
		if response.StatusCode >= http.StatusInternalServerError || response.StatusCode == http.StatusTooManyRequests {
			return failure
		}

		return backoff.Permanent(failure)
	}

	return nil
}
