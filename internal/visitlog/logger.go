// Package visitlog records tab visits. Each visit is posted to the remote
// tab-event endpoint and appended to a local journal; both are detached from
// the caller and failures are only logged.
package visitlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	PageTypeYouTube = "youtube"
	PageTypeWebpage = "webpage"

	watchPath = "youtube.com/watch"
)

// PageType tags video-watch pages as "youtube" and everything else as "webpage".
func PageType(url string) string {
	if strings.Contains(url, watchPath) {
		return PageTypeYouTube
	}
	return PageTypeWebpage
}

// Event is the tab-event request body.
type Event struct {
	URL      string `json:"url"`
	PageType string `json:"page_type"`
}

// Record is one journal line.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Event
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Logger posts visit events without blocking the caller.
type Logger struct {
	endpoint string
	http     *http.Client
	journal  *Journal
	timeout  time.Duration
	now      func() time.Time

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewLogger returns a logger posting to endpoint (e.g.
// "http://127.0.0.1:8000/tab-event"). An empty endpoint disables remote
// delivery; a nil journal disables the local copy.
func NewLogger(endpoint string, client *http.Client, journal *Journal, timeout time.Duration) *Logger {
	if client == nil {
		client = http.DefaultClient
	}
	return &Logger{
		endpoint: endpoint,
		http:     client,
		journal:  journal,
		timeout:  timeout,
		now:      time.Now,
	}
}

// LogVisit records the visit in the background.
func (l *Logger) LogVisit(evt Event) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		slog.Debug("visit dropped after close", "url", evt.URL)
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		rec := Record{Timestamp: l.now().UTC(), Event: evt}
		if l.endpoint != "" {
			ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
			err := l.post(ctx, evt)
			cancel()
			if err != nil {
				rec.Error = err.Error()
				slog.Warn("tab event delivery failed", "url", evt.URL, "page_type", evt.PageType, "error", err)
			} else {
				rec.Delivered = true
				slog.Debug("tab event delivered", "url", evt.URL, "page_type", evt.PageType)
			}
		}
		if l.journal != nil {
			if err := l.journal.Write(rec); err != nil {
				slog.Debug("visit journal write skipped", "error", err)
			}
		}
	}()
}

// Close waits for in-flight deliveries and closes the journal.
func (l *Logger) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
	if l.journal != nil {
		return l.journal.Close()
	}
	return nil
}

func (l *Logger) post(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tab event failed: status=%d", resp.StatusCode)
	}
	return nil
}
