// Package monitor decides which tabs get closed.
//
// Every activation or navigation starts a fresh cycle for the tab: after
// ClassifyDelay the page text is scraped and classified, and an unproductive
// verdict shows a warning and arms a close after AutoCloseDelay. Each cycle
// owns a generation number and a cancellation token in the Store; any later
// event for the tab supersedes it, which stops its timers, aborts its
// in-flight requests and makes any late verdict a no-op.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/tabwarden/internal/classify"
	"github.com/dgnsrekt/tabwarden/internal/host"
	"github.com/dgnsrekt/tabwarden/internal/relay"
	"github.com/dgnsrekt/tabwarden/internal/visitlog"
)

const (
	ClassifyDelay         = 60 * time.Second
	AutoCloseDelay        = 5 * time.Minute
	UnproductiveThreshold = 0.5

	defaultCallTimeout = 10 * time.Second
)

// Host is the browser side of the monitor.
type Host interface {
	GetTab(ctx context.Context, tabID string) (host.Tab, error)
	RemoveTab(ctx context.Context, tabID string) error
}

// Page talks to the content script running inside a tab.
type Page interface {
	Inject(ctx context.Context, tabID string) error
	Scrape(ctx context.Context, tabID string) (string, error)
	ShowWarning(ctx context.Context, tabID string, confidence float64) error
}

type Classifier interface {
	Predict(ctx context.Context, text string) (classify.Verdict, error)
}

// VisitLogger must not block; delivery failures stay inside the logger.
type VisitLogger interface {
	LogVisit(evt visitlog.Event)
}

type Ignorer interface {
	Ignored(url string) bool
}

type Publisher interface {
	Publish(evt relay.Event)
}

type Notifier interface {
	TabClosed(ctx context.Context, tabID, url string) error
}

// Options carries the optional collaborators. Zero values are fine.
type Options struct {
	Clock       Clock
	Ignore      Ignorer
	Events      Publisher
	Notifier    Notifier
	CallTimeout time.Duration
}

type Monitor struct {
	store      *Store
	host       Host
	page       Page
	classifier Classifier
	visits     VisitLogger

	clock       Clock
	ignore      Ignorer
	events      Publisher
	notifier    Notifier
	callTimeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(store *Store, h Host, page Page, classifier Classifier, visits VisitLogger, opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = store.clock
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	return &Monitor{
		store:       store,
		host:        h,
		page:        page,
		classifier:  classifier,
		visits:      visits,
		clock:       opts.Clock,
		ignore:      opts.Ignore,
		events:      opts.Events,
		notifier:    opts.Notifier,
		callTimeout: opts.CallTimeout,
	}
}

// Sessions lists every tracked tab.
func (m *Monitor) Sessions() []Session {
	return m.store.List()
}

// Session returns the tracked state for one tab.
func (m *Monitor) Session(tabID string) (Session, bool) {
	return m.store.Get(tabID)
}

// Close cancels every session and waits for running callbacks and detached
// work to finish.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.store.Close()
	m.wg.Wait()
}

// track runs fn unless the monitor is closed, counting it for Close.
func (m *Monitor) track(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()
	fn()
}

func (m *Monitor) detach(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

func (m *Monitor) publish(s Session) {
	if m.events == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		slog.Debug("session event encode failed", "tab_id", s.TabID, "error", err)
		return
	}
	m.events.Publish(relay.Event{Feed: string(s.State), TabID: s.TabID, Payload: payload})
}

func (m *Monitor) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, m.callTimeout)
}
