package host

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// notFoundHints are substrings of CDP error messages returned for targets
// that no longer exist.
var notFoundHints = []string{
	"no target with given id",
	"target not found",
	"no such target",
}

// Client is the browser as seen by the monitor: it resolves and closes tabs
// and turns CDP target discovery events into tab URL-update and destroyed
// notifications.
type Client struct {
	cdpURL      string
	callTimeout time.Duration

	mu       sync.Mutex
	cdp      *rawCDP
	handlers Handlers
	urls     map[target.ID]string
	unreg    []func()
}

func NewClient(cdpURL string, callTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		callTimeout: callTimeout,
		urls:        make(map[target.ID]string),
	}
}

// Subscribe installs the event handlers. It must be called before Connect.
func (c *Client) Subscribe(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Connect dials the browser, seeds the known tab URLs and enables target
// discovery. Tabs already open at connect time do not produce URL updates.
func (c *Client) Connect(ctx context.Context) error {
	cdp, err := c.dial(ctx)
	if err != nil {
		return err
	}

	// Discovery replays targetCreated for every open target before the
	// command returns; the event handlers need c.mu, so it must not be held.
	discoverCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := cdp.setDiscoverTargets(discoverCtx, true); err != nil {
		c.mu.Lock()
		c.cleanupLocked()
		c.mu.Unlock()
		return newError(CodeCDPUnavailable, "enable target discovery failed", err)
	}

	c.mu.Lock()
	tabs := len(c.urls)
	c.mu.Unlock()
	slog.Info("host connect ok", "cdp_url", c.cdpURL, "tabs", tabs)
	return nil
}

func (c *Client) dial(ctx context.Context) (*rawCDP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cdpURL == "" {
		return nil, newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("host connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	cdp := newRawCDP(c.cdpURL)
	targets, err := cdp.listTargets(ctx)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "list targets failed", err)
	}
	for _, t := range targets {
		if t.Type == "page" {
			c.urls[t.TargetID] = t.URL
		}
	}

	if err := cdp.connect(ctx); err != nil {
		return nil, newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.cdp = cdp

	c.unreg = append(c.unreg,
		cdp.registerEventHandler("Target.targetCreated", c.onTargetCreated),
		cdp.registerEventHandler("Target.targetInfoChanged", c.onTargetInfoChanged),
		cdp.registerEventHandler("Target.targetDestroyed", c.onTargetDestroyed),
	)
	return cdp, nil
}

// Done is closed when the browser connection drops.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.cdp.done()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	for _, fn := range c.unreg {
		fn()
	}
	c.unreg = nil
	if c.cdp != nil {
		c.cdp.close()
		c.cdp = nil
	}
	c.urls = make(map[target.ID]string)
}

// GetTab returns the tab's current URL, or an error matching ErrTabNotFound
// when the tab no longer exists.
func (c *Client) GetTab(ctx context.Context, tabID string) (Tab, error) {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return Tab{}, newError(CodeValidation, "tab id is required", nil)
	}
	cdp, err := c.conn()
	if err != nil {
		return Tab{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	info, err := cdp.getTargetInfo(callCtx, target.ID(tabID))
	if err != nil {
		return Tab{}, c.classify(err, "get tab "+tabID)
	}
	if info.Type != "page" {
		return Tab{}, newError(CodeTabNotFound, "target is not a tab: "+tabID, nil)
	}
	return Tab{ID: string(info.TargetID), URL: info.URL, Title: info.Title}, nil
}

// RemoveTab closes the tab.
func (c *Client) RemoveTab(ctx context.Context, tabID string) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return newError(CodeValidation, "tab id is required", nil)
	}
	cdp, err := c.conn()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := cdp.closeTarget(callCtx, target.ID(tabID)); err != nil {
		return c.classify(err, "remove tab "+tabID)
	}
	slog.Debug("host tab removed", "tab_id", tabID)
	return nil
}

// ListTabs returns the open page targets sorted by id.
func (c *Client) ListTabs(ctx context.Context) ([]Tab, error) {
	cdp, err := c.conn()
	if err != nil {
		return nil, err
	}
	targets, err := cdp.listTargets(ctx)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "list targets failed", err)
	}
	tabs := make([]Tab, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		tabs = append(tabs, Tab{ID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs, nil
}

func (c *Client) conn() (*rawCDP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp == nil {
		return nil, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	return c.cdp, nil
}

func (c *Client) classify(err error, op string) error {
	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		msg := strings.ToLower(cmdErr.Message)
		for _, hint := range notFoundHints {
			if strings.Contains(msg, hint) {
				return newError(CodeTabNotFound, op, err)
			}
		}
		return newError(CodeCommandFailure, op, err)
	}
	return newError(CodeCDPUnavailable, op, err)
}

func (c *Client) onTargetCreated(params json.RawMessage) {
	var evt target.EventTargetCreated
	if err := json.Unmarshal(params, &evt); err != nil || evt.TargetInfo == nil {
		slog.Debug("host targetCreated decode failed", "error", err)
		return
	}
	c.observeURL(evt.TargetInfo)
}

func (c *Client) onTargetInfoChanged(params json.RawMessage) {
	var evt target.EventTargetInfoChanged
	if err := json.Unmarshal(params, &evt); err != nil || evt.TargetInfo == nil {
		slog.Debug("host targetInfoChanged decode failed", "error", err)
		return
	}
	c.observeURL(evt.TargetInfo)
}

func (c *Client) onTargetDestroyed(params json.RawMessage) {
	var evt target.EventTargetDestroyed
	if err := json.Unmarshal(params, &evt); err != nil {
		slog.Debug("host targetDestroyed decode failed", "error", err)
		return
	}

	c.mu.Lock()
	_, known := c.urls[evt.TargetID]
	delete(c.urls, evt.TargetID)
	fn := c.handlers.OnDestroyed
	c.mu.Unlock()

	if known && fn != nil {
		slog.Debug("host tab destroyed", "tab_id", evt.TargetID)
		fn(string(evt.TargetID))
	}
}

// observeURL emits OnURLUpdated when a page target reports a URL different
// from the last one seen.
func (c *Client) observeURL(info *target.Info) {
	if info.Type != "page" || info.URL == "" {
		return
	}

	c.mu.Lock()
	prev, known := c.urls[info.TargetID]
	c.urls[info.TargetID] = info.URL
	fn := c.handlers.OnURLUpdated
	c.mu.Unlock()

	if known && prev == info.URL {
		return
	}
	slog.Debug("host tab url updated", "tab_id", info.TargetID, "url", truncateURL(info.URL))
	if fn != nil {
		fn(string(info.TargetID), info.URL)
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
