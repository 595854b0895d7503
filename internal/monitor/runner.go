package monitor

import (
	"errors"
	"log/slog"

	"github.com/dgnsrekt/tabwarden/internal/host"
)

// classify runs one classification cycle for generation gen. Every failure
// ends the cycle; nothing is retried.
func (m *Monitor) classify(tabID, expectedURL string, gen uint64) {
	ctx, ok := m.store.Context(tabID, gen)
	if !ok {
		slog.Debug("classify skipped for superseded cycle", "tab_id", tabID, "generation", gen)
		return
	}
	if s, ok := m.store.Transition(tabID, gen, func(s *Session) { s.State = StateClassifying }); ok {
		m.publish(s)
	}
	log := slog.With("tab_id", tabID, "url", expectedURL, "generation", gen)

	callCtx, cancel := m.callContext(ctx)
	tab, err := m.host.GetTab(callCtx, tabID)
	cancel()
	if err != nil {
		if errors.Is(err, host.ErrTabNotFound) {
			log.Debug("tab gone before classification")
			m.abort(tabID, gen, "tab not found")
			return
		}
		log.Warn("tab lookup failed", "error", err)
		m.abort(tabID, gen, "tab lookup failed")
		return
	}
	if tab.URL != expectedURL {
		log.Debug("tab navigated away before classification", "current_url", tab.URL)
		m.abort(tabID, gen, "url changed")
		return
	}

	callCtx, cancel = m.callContext(ctx)
	text, err := m.page.Scrape(callCtx, tabID)
	cancel()
	if err != nil {
		log.Warn("page scrape failed", "error", err)
		m.abort(tabID, gen, "scrape failed")
		return
	}

	callCtx, cancel = m.callContext(ctx)
	verdict, err := m.classifier.Predict(callCtx, text)
	cancel()
	if err != nil {
		log.Warn("classification failed", "error", err)
		m.abort(tabID, gen, "classification failed")
		return
	}
	score := verdict.Unproductive

	if score < UnproductiveThreshold {
		if s, ok := m.store.Transition(tabID, gen, func(s *Session) {
			s.State = StateProductive
			s.Verdict = &score
		}); ok {
			log.Info("page classified productive", "unproductive", score)
			m.publish(s)
		}
		return
	}

	if ctx.Err() != nil {
		log.Info("stale verdict discarded", "unproductive", score)
		return
	}
	m.store.Transition(tabID, gen, func(s *Session) { s.Verdict = &score })

	callCtx, cancel = m.callContext(ctx)
	err = m.page.ShowWarning(callCtx, tabID, score)
	cancel()
	if err != nil {
		log.Warn("warning display failed", "error", err)
	}

	s, ok := m.store.ArmClose(tabID, gen, AutoCloseDelay, func() Timer {
		return m.clock.AfterFunc(AutoCloseDelay, func() {
			m.track(func() { m.enforceClose(tabID, expectedURL, gen) })
		})
	})
	if !ok {
		log.Info("stale verdict discarded", "unproductive", score)
		return
	}
	log.Info("page classified unproductive, close armed", "unproductive", score, "close_at", s.CloseAt)
	m.publish(s)
}

func (m *Monitor) abort(tabID string, gen uint64, reason string) {
	s, ok := m.store.Transition(tabID, gen, func(s *Session) {
		s.State = StateAborted
		s.Reason = reason
	})
	if ok {
		m.publish(s)
	}
}
