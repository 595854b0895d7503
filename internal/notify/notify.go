package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Notifier posts tab-closed messages to an ntfy topic.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func NewNotifier(endpoint string, client *http.Client) *Notifier {
	return &Notifier{endpoint: endpoint, client: client}
}

// TabClosed reports an auto-closed tab.
func (n *Notifier) TabClosed(ctx context.Context, tabID, url string) error {
	return Send(ctx, n.client, n.endpoint, closedMessage(tabID, url))
}

func closedMessage(tabID, url string) string {
	return fmt.Sprintf("Closed unproductive tab after warning: %s (tab %s)", url, tabID)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "tabwarden")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
