package relay

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// SSEHandler streams broker events as server-sent events.
//
// Query parameters: feeds=a,b limits event names; tab_id=X limits to one tab.
// A Last-Event-ID header replays retained events newer than that id.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		filter := parseFilter(r)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		var (
			id      int64
			backlog []Event
			ch      <-chan Event
		)
		if last, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
			id, backlog, ch = broker.SubscribeSince(last)
		} else {
			id, ch = broker.Subscribe()
		}
		defer broker.Unsubscribe(id)

		out := &stream{w: w, filter: filter}
		for _, evt := range backlog {
			out.send(evt)
		}
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if out.send(evt) {
					flusher.Flush()
				}
			}
		}
	}
}

// stream writes events to one client at most once each, in id order.
type stream struct {
	w        http.ResponseWriter
	filter   eventFilter
	lastSent int64
}

func (s *stream) send(evt Event) bool {
	if evt.ID <= s.lastSent {
		return false
	}
	s.lastSent = evt.ID
	if !s.filter.match(evt) {
		return false
	}
	writeEvent(s.w, evt)
	return true
}

type eventFilter struct {
	feeds map[string]bool // nil means accept all
	tabID string
}

func parseFilter(r *http.Request) eventFilter {
	var f eventFilter
	if q := r.URL.Query().Get("feeds"); q != "" {
		f.feeds = make(map[string]bool)
		for _, name := range strings.Split(q, ",") {
			if name = strings.TrimSpace(name); name != "" {
				f.feeds[name] = true
			}
		}
	}
	f.tabID = strings.TrimSpace(r.URL.Query().Get("tab_id"))
	return f
}

func (f eventFilter) match(evt Event) bool {
	if f.feeds != nil && !f.feeds[evt.Feed] {
		return false
	}
	if f.tabID != "" && f.tabID != evt.TabID {
		return false
	}
	return true
}

func writeEvent(w http.ResponseWriter, evt Event) {
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.ID, evt.Feed, evt.Payload)
}
