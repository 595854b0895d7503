package main

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/tabwarden/internal/host"
)

type stubLister struct {
	tabs []host.Tab
	err  error
}

func (l stubLister) ListTabs(context.Context) ([]host.Tab, error) {
	return l.tabs, l.err
}

type recordingWatcher struct {
	mu      sync.Mutex
	watched []string
	done    chan struct{}
}

func (w *recordingWatcher) Watch(_ context.Context, tabID string, reportVisible bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !reportVisible {
		return errors.New("open tabs must report when visible")
	}
	w.watched = append(w.watched, tabID)
	w.done <- struct{}{}
	return nil
}

type prefixIgnore string

func (p prefixIgnore) Ignored(url string) bool { return strings.HasPrefix(url, string(p)) }

func TestWatchOpenTabsSkipsIgnored(t *testing.T) {
	lister := stubLister{tabs: []host.Tab{
		{ID: "tab-1", URL: "https://a.example/"},
		{ID: "tab-2", URL: "chrome://newtab/"},
		{ID: "tab-3", URL: "https://b.example/"},
	}}
	w := &recordingWatcher{done: make(chan struct{}, 3)}

	watchOpenTabs(context.Background(), lister, w, prefixIgnore("chrome://"))

	for i := 0; i < 2; i++ {
		select {
		case <-w.done:
		case <-time.After(time.Second):
			t.Fatalf("only %d of 2 tabs watched", i)
		}
	}
	select {
	case <-w.done:
		t.Fatal("ignored tab watched")
	case <-time.After(50 * time.Millisecond):
	}

	w.mu.Lock()
	got := append([]string(nil), w.watched...)
	w.mu.Unlock()
	sort.Strings(got)
	if strings.Join(got, ",") != "tab-1,tab-3" {
		t.Fatalf("watched = %v; want tab-1, tab-3", got)
	}
}

func TestWatchOpenTabsListFailure(t *testing.T) {
	w := &recordingWatcher{done: make(chan struct{}, 1)}
	watchOpenTabs(context.Background(), stubLister{err: errors.New("cdp client is not connected")}, w, nil)
	select {
	case <-w.done:
		t.Fatal("watched a tab after list failure")
	case <-time.After(20 * time.Millisecond):
	}
}
