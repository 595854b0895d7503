package monitor

import (
	"context"
	"log/slog"
)

// enforceClose removes the tab. The URL is not re-checked; only a superseded
// generation, whose timer lost the race with Stop, is skipped.
//
// The session is marked closed before RemoveTab: the browser can report the
// target destroyed before closeTarget returns, and TabDestroyed must already
// see a closed session by then.
func (m *Monitor) enforceClose(tabID, url string, gen uint64) {
	closed, ok := m.store.Transition(tabID, gen, func(s *Session) { s.State = StateClosed })
	if !ok {
		slog.Debug("close skipped for superseded cycle", "tab_id", tabID, "generation", gen)
		return
	}

	ctx, cancel := m.callContext(context.Background())
	defer cancel()
	if err := m.host.RemoveTab(ctx, tabID); err != nil {
		slog.Warn("tab close failed", "tab_id", tabID, "url", url, "error", err)
		m.abort(tabID, gen, "close failed")
		return
	}
	slog.Info("tab closed", "tab_id", tabID, "url", url)
	m.publish(closed)

	if m.notifier != nil {
		if err := m.notifier.TabClosed(ctx, tabID, url); err != nil {
			slog.Debug("close notification failed", "tab_id", tabID, "error", err)
		}
	}
}
