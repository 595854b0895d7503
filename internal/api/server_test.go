package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/tabwarden/internal/host"
	"github.com/dgnsrekt/tabwarden/internal/monitor"
	"github.com/dgnsrekt/tabwarden/internal/relay"
)

type stubService struct {
	sessions  map[string]monitor.Session
	activated []string
	navigated []string
	tabsErr   error
}

func newStubService() *stubService {
	return &stubService{sessions: make(map[string]monitor.Session)}
}

func (s *stubService) Sessions() []monitor.Session {
	out := make([]monitor.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *stubService) Session(tabID string) (monitor.Session, bool) {
	sess, ok := s.sessions[tabID]
	return sess, ok
}

func (s *stubService) TabActivated(_ context.Context, tabID, url string) error {
	if url == "" {
		return fmt.Errorf("lookup: %w", host.ErrTabNotFound)
	}
	s.activated = append(s.activated, tabID+" "+url)
	s.sessions[tabID] = monitor.Session{TabID: tabID, URL: url, State: monitor.StatePending, Generation: 1}
	return nil
}

func (s *stubService) TabURLUpdated(_ context.Context, tabID, url string) error {
	if url == "" {
		return &host.CodedError{Code: host.CodeValidation, Message: "url is required"}
	}
	s.navigated = append(s.navigated, tabID+" "+url)
	s.sessions[tabID] = monitor.Session{TabID: tabID, URL: url, State: monitor.StatePending, Generation: 2}
	return nil
}

func (s *stubService) ListTabs(context.Context) ([]host.Tab, error) {
	if s.tabsErr != nil {
		return nil, s.tabsErr
	}
	return []host.Tab{{ID: "tab-1", URL: "https://a.example/"}}, nil
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := NewServer(newStubService(), nil)
	w := doRequest(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(newStubService(), nil)
	w := doRequest(t, h, http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestNavigateAndGetSession(t *testing.T) {
	svc := newStubService()
	h := NewServer(svc, nil)

	w := doRequest(t, h, http.MethodPost, "/api/v1/tabs/tab-1/navigate", `{"url":"https://b.example/"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("navigate status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(svc.navigated) != 1 || svc.navigated[0] != "tab-1 https://b.example/" {
		t.Fatalf("navigated = %v", svc.navigated)
	}

	w = doRequest(t, h, http.MethodGet, "/api/v1/sessions/tab-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got monitor.Session
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if got.URL != "https://b.example/" || got.State != monitor.StatePending {
		t.Fatalf("session = %+v", got)
	}

	w = doRequest(t, h, http.MethodGet, "/api/v1/sessions", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"tab_id":"tab-1"`) {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNavigateEmptyURLIsBadRequest(t *testing.T) {
	h := NewServer(newStubService(), nil)
	w := doRequest(t, h, http.MethodPost, "/api/v1/tabs/tab-1/navigate", `{"url":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestActivateErrors(t *testing.T) {
	h := NewServer(newStubService(), nil)
	w := doRequest(t, h, http.MethodPost, "/api/v1/tabs/tab-9/activate", `{}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = doRequest(t, h, http.MethodGet, "/api/v1/sessions/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListTabsCDPUnavailable(t *testing.T) {
	svc := newStubService()
	svc.tabsErr = &host.CodedError{Code: host.CodeCDPUnavailable, Message: "cdp client is not connected"}
	h := NewServer(svc, nil)
	w := doRequest(t, h, http.MethodGet, "/api/v1/tabs", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestEventsStream(t *testing.T) {
	broker := relay.NewBroker()
	broker.Publish(relay.Event{Feed: "warned", TabID: "tab-1", Payload: []byte(`{"tab_id":"tab-1"}`)})
	h := NewServer(newStubService(), broker)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?feeds=warned", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "0")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "event: warned") {
		t.Fatalf("body = %q; want replayed warned event", w.Body.String())
	}
}
