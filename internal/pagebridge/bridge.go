// Package pagebridge talks to the content script that tabwarden evaluates in
// each monitored page. The script runs in an isolated world, so the page can
// neither see it nor call its binding. Requests follow a small message
// contract:
//
//	{"action":"scrape"}                        -> {"text": "..."}
//	{"action":"showWarning","confidence":0.87} -> (response ignored)
//	{"action":"watch","install":true}          -> {"ok": true}
//
// The watch action adds a visibilitychange listener that reports the tab
// through the __tabwardenActivated binding each time it becomes visible.
package pagebridge

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

//go:embed content.js
var contentScript string

const (
	ActionScrape      = "scrape"
	ActionShowWarning = "showWarning"
	ActionWatch       = "watch"

	worldName        = "tabwarden"
	activatedBinding = "__tabwardenActivated"
)

// Message is a request delivered to the in-page content script.
type Message struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence,omitempty"`
	Install    bool    `json:"install,omitempty"`
	Report     bool    `json:"report,omitempty"`
}

type response struct {
	Text  string `json:"text"`
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type tabContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes CDP runs on the tab and guards the fields below.
	mu       sync.Mutex
	ready    bool
	watching bool
	loader   cdp.LoaderID // document holding the visibility listener
}

// Bridge evaluates content-script messages in browser tabs via chromedp.
type Bridge struct {
	cdpURL      string
	evalTimeout time.Duration

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        map[string]*tabContext
	onActivated func(tabID, url string)
}

func New(cdpURL string, evalTimeout time.Duration) *Bridge {
	return &Bridge{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		tabs:        make(map[string]*tabContext),
	}
}

// OnActivated registers the callback for tabs that become visible. It runs on
// its own goroutine; url is empty if the page did not report one.
func (b *Bridge) OnActivated(fn func(tabID, url string)) {
	b.mu.Lock()
	b.onActivated = fn
	b.mu.Unlock()
}

// Start creates the remote allocator. Tab contexts are attached lazily.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCtx != nil {
		return
	}
	b.allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.Background(), b.cdpURL)
	slog.Info("pagebridge allocator ready", "cdp_url", b.cdpURL)
}

// Close detaches from every tab.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, tc := range b.tabs {
		tc.cancel()
		delete(b.tabs, id)
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCtx, b.allocCancel = nil, nil
	}
}

// Forget drops the tab's attached context. Called once the tab is gone.
func (b *Bridge) Forget(tabID string) {
	b.mu.Lock()
	tc, ok := b.tabs[tabID]
	delete(b.tabs, tabID)
	b.mu.Unlock()
	if ok {
		tc.cancel()
	}
}

// Inject makes sure the tab's current document carries the visibility
// listener. Scrape and ShowWarning carry the script with every message.
func (b *Bridge) Inject(ctx context.Context, tabID string) error {
	return b.Watch(ctx, tabID, false)
}

// Watch installs the visibility listener in the tab's current document and
// reinstalls it after every page load. With reportVisible set, a tab that is
// already visible is reported right away; use it for tabs open before
// tabwarden connected.
func (b *Bridge) Watch(ctx context.Context, tabID string, reportVisible bool) error {
	return b.run(ctx, tabID, ActionWatch, func(tc *tabContext) chromedp.Action {
		return chromedp.ActionFunc(func(ctx context.Context) error {
			if !tc.watching {
				if err := runtime.AddBinding(activatedBinding).WithExecutionContextName(worldName).Do(ctx); err != nil {
					return fmt.Errorf("add binding: %w", err)
				}
				chromedp.ListenTarget(tc.ctx, func(ev any) { b.handleEvent(tabID, tc, ev) })
				tc.watching = true
			}

			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			install := tree.Frame.LoaderID != tc.loader
			if !install && !reportVisible {
				return nil
			}
			expr, err := buildMessageExpression(Message{Action: ActionWatch, Install: install, Report: reportVisible})
			if err != nil {
				return err
			}
			var raw string
			if err := evaluateInWorld(ctx, tree.Frame.ID, expr, &raw); err != nil {
				return err
			}
			if _, err := decodeResponse(ActionWatch, raw); err != nil {
				return err
			}
			if install {
				tc.loader = tree.Frame.LoaderID
			}
			return nil
		})
	})
}

// handleEvent runs on the chromedp event loop and must not block.
func (b *Bridge) handleEvent(tabID string, tc *tabContext, ev any) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		b.handleBinding(tabID, ev)
	case *page.EventLoadEventFired:
		go func() {
			if !b.attached(tabID, tc) {
				return
			}
			if err := b.Watch(context.Background(), tabID, false); err != nil {
				slog.Debug("pagebridge rewatch failed", "tab_id", tabID, "error", err)
			}
		}()
	}
}

func (b *Bridge) handleBinding(tabID string, ev *runtime.EventBindingCalled) {
	if ev.Name != activatedBinding {
		return
	}
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
		slog.Debug("pagebridge activation payload invalid", "tab_id", tabID, "error", err)
		return
	}
	b.mu.Lock()
	fn := b.onActivated
	b.mu.Unlock()
	if fn == nil {
		return
	}
	slog.Debug("pagebridge tab activated", "tab_id", tabID)
	go fn(tabID, payload.URL)
}

// Scrape asks the content script for the page's text.
func (b *Bridge) Scrape(ctx context.Context, tabID string) (string, error) {
	resp, err := b.send(ctx, tabID, Message{Action: ActionScrape})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ShowWarning asks the content script to display the unproductive-page overlay.
func (b *Bridge) ShowWarning(ctx context.Context, tabID string, confidence float64) error {
	_, err := b.send(ctx, tabID, Message{Action: ActionShowWarning, Confidence: confidence})
	return err
}

func (b *Bridge) send(ctx context.Context, tabID string, msg Message) (response, error) {
	expr, err := buildMessageExpression(msg)
	if err != nil {
		return response{}, err
	}
	var raw string
	err = b.run(ctx, tabID, msg.Action, func(*tabContext) chromedp.Action {
		return chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return evaluateInWorld(ctx, tree.Frame.ID, expr, &raw)
		})
	})
	if err != nil {
		return response{}, err
	}
	return decodeResponse(msg.Action, raw)
}

func decodeResponse(action, raw string) (response, error) {
	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return response{}, fmt.Errorf("pagebridge: %s: invalid response: %w", action, err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("pagebridge: %s: %s", action, resp.Error)
	}
	return resp, nil
}

// buildMessageExpression returns a self-contained expression: every isolated
// world starts empty, so the script travels with each message.
func buildMessageExpression(msg Message) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("pagebridge: marshal message: %w", err)
	}
	return "(function(){\n" + contentScript + "\nreturn JSON.stringify(window.__tabwarden.handle(" + string(payload) + "));\n})()", nil
}

func evaluateInWorld(ctx context.Context, frameID cdp.FrameID, expr string, out any) error {
	execID, err := page.CreateIsolatedWorld(frameID).WithWorldName(worldName).Do(ctx)
	if err != nil {
		return fmt.Errorf("create isolated world: %w", err)
	}
	return chromedp.Evaluate(expr, out, inContext(execID)).Do(ctx)
}

func inContext(id runtime.ExecutionContextID) chromedp.EvaluateOption {
	return func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithContextID(id)
	}
}

// run executes the action built by fn on the tab, holding the tab lock.
func (b *Bridge) run(ctx context.Context, tabID, op string, fn func(tc *tabContext) chromedp.Action) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return errors.New("pagebridge: tab id is required")
	}
	tc, err := b.attach(tabID)
	if err != nil {
		return err
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	// The first Run attaches the target; it must use the untimed tab context
	// or a timeout would tear the attachment down with it.
	if !tc.ready {
		if err := chromedp.Run(tc.ctx); err != nil {
			b.Forget(tabID)
			return fmt.Errorf("pagebridge: attach %s: %w", tabID, err)
		}
		tc.ready = true
	}

	runCtx, runCancel := context.WithTimeout(tc.ctx, b.evalTimeout)
	defer runCancel()
	stop := context.AfterFunc(ctx, runCancel)
	defer stop()

	if err := chromedp.Run(runCtx, fn(tc)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("pagebridge: %s on %s: %w", op, tabID, err)
	}
	return nil
}

func (b *Bridge) attached(tabID string, tc *tabContext) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tabs[tabID] == tc
}

func (b *Bridge) attach(tabID string) (*tabContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCtx == nil {
		return nil, errors.New("pagebridge: not started")
	}
	if tc, ok := b.tabs[tabID]; ok {
		return tc, nil
	}
	ctx, cancel := chromedp.NewContext(b.allocCtx, chromedp.WithTargetID(target.ID(tabID)))
	tc := &tabContext{ctx: ctx, cancel: cancel}
	b.tabs[tabID] = tc
	slog.Debug("pagebridge tab context created", "tab_id", tabID)
	return tc, nil
}
