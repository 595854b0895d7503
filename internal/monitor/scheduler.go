package monitor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/tabwarden/internal/host"
	"github.com/dgnsrekt/tabwarden/internal/visitlog"
)

func validationError(msg string) error {
	return &host.CodedError{Code: host.CodeValidation, Message: msg}
}

// TabActivated starts a new cycle for a tab that gained focus. An empty url
// is looked up from the host.
func (m *Monitor) TabActivated(ctx context.Context, tabID, url string) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return validationError("tab_id is required")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		callCtx, cancel := m.callContext(ctx)
		tab, err := m.host.GetTab(callCtx, tabID)
		cancel()
		if err != nil {
			return err
		}
		url = tab.URL
	}
	m.restart(tabID, url, "activated")
	return nil
}

// TabURLUpdated starts a new cycle for a tab that navigated.
func (m *Monitor) TabURLUpdated(_ context.Context, tabID, url string) error {
	tabID = strings.TrimSpace(tabID)
	url = strings.TrimSpace(url)
	if tabID == "" {
		return validationError("tab_id is required")
	}
	if url == "" {
		return validationError("url is required")
	}
	m.restart(tabID, url, "navigated")
	return nil
}

// TabDestroyed drops the tab's session and its timers.
func (m *Monitor) TabDestroyed(tabID string) {
	s, ok := m.store.Forget(tabID)
	if !ok {
		return
	}
	slog.Debug("session forgotten", "tab_id", tabID, "generation", s.Generation)
	if s.State != StateClosed {
		s.State = StateAborted
		s.Reason = "tab destroyed"
		m.publish(s)
	}
}

func (m *Monitor) restart(tabID, url, trigger string) {
	if m.ignore != nil && m.ignore.Ignored(url) {
		if s, ok := m.store.Forget(tabID); ok {
			s.State = StateAborted
			s.Reason = "ignored url"
			m.publish(s)
		}
		slog.Debug("ignored url not monitored", "tab_id", tabID, "url", url)
		return
	}

	if m.visits != nil {
		m.visits.LogVisit(visitlog.Event{URL: url, PageType: visitlog.PageType(url)})
	}

	s, ok := m.store.Reset(tabID, url, func(gen uint64) Timer {
		return m.clock.AfterFunc(ClassifyDelay, func() {
			m.track(func() { m.classify(tabID, url, gen) })
		})
	})
	if !ok {
		slog.Debug("monitor closed, event dropped", "tab_id", tabID)
		return
	}
	slog.Info("monitoring tab", "tab_id", tabID, "url", url, "trigger", trigger, "generation", s.Generation, "cycle_id", s.CycleID)
	m.publish(s)

	m.detach(func() {
		ctx, cancel := m.callContext(context.Background())
		defer cancel()
		if err := m.page.Inject(ctx, tabID); err != nil {
			slog.Debug("content script injection failed", "tab_id", tabID, "error", err)
		}
	})
}
