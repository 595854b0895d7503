package pagebridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
)

func TestContentScriptEmbedded(t *testing.T) {
	for _, want := range []string{"window.__tabwarden", `"scrape"`, `"showWarning"`, `"watch"`, "youtube.com/watch", "visibilitychange", activatedBinding} {
		if !strings.Contains(contentScript, want) {
			t.Fatalf("content script missing %q", want)
		}
	}
}

func TestBuildMessageExpression(t *testing.T) {
	expr, err := buildMessageExpression(Message{Action: ActionShowWarning, Confidence: 0.875})
	if err != nil {
		t.Fatalf("buildMessageExpression() error = %v", err)
	}
	if !strings.HasPrefix(expr, "(function(){\n") || !strings.HasSuffix(expr, "})()") {
		t.Fatalf("expression is not an IIFE: %q", expr[:40])
	}
	if !strings.Contains(expr, `window.__tabwarden.handle({"action":"showWarning","confidence":0.875})`) {
		t.Fatalf("expression missing message payload")
	}

	expr, err = buildMessageExpression(Message{Action: ActionScrape})
	if err != nil {
		t.Fatalf("buildMessageExpression() error = %v", err)
	}
	if !strings.Contains(expr, `handle({"action":"scrape"})`) {
		t.Fatalf("scrape payload should omit confidence")
	}
}

func TestEvalRequiresStartAndTabID(t *testing.T) {
	b := New("http://127.0.0.1:9220", time.Second)

	if _, err := b.Scrape(context.Background(), " "); err == nil || !strings.Contains(err.Error(), "tab id is required") {
		t.Fatalf("Scrape() error = %v; want tab id validation", err)
	}
	if err := b.Inject(context.Background(), "tab-1"); err == nil || !strings.Contains(err.Error(), "not started") {
		t.Fatalf("Inject() error = %v; want not started", err)
	}
}

func TestForgetUnknownTabIsNoop(t *testing.T) {
	b := New("http://127.0.0.1:9220", time.Second)
	b.Forget("missing")
	b.Close()
}

func TestWatchMessageCarriesFlags(t *testing.T) {
	expr, err := buildMessageExpression(Message{Action: ActionWatch, Install: true, Report: true})
	if err != nil {
		t.Fatalf("buildMessageExpression() error = %v", err)
	}
	if !strings.Contains(expr, `handle({"action":"watch","install":true,"report":true})`) {
		t.Fatalf("watch payload missing flags")
	}
	// Each isolated world starts empty, so the script must ship with the message.
	if !strings.Contains(expr, contentScript) {
		t.Fatalf("expression does not embed the content script")
	}
}

func TestInContextTargetsIsolatedWorld(t *testing.T) {
	p := inContext(runtime.ExecutionContextID(42))(runtime.Evaluate("1"))
	if p.ContextID != 42 {
		t.Fatalf("ContextID = %d; want 42", p.ContextID)
	}
}

func TestHandleBindingDispatchesActivation(t *testing.T) {
	b := New("http://127.0.0.1:9220", time.Second)
	type activation struct{ tabID, url string }
	got := make(chan activation, 4)
	b.OnActivated(func(tabID, url string) { got <- activation{tabID, url} })

	b.handleEvent("tab-1", nil, &runtime.EventBindingCalled{Name: "somethingElse", Payload: `{"url":"https://x.example/"}`})
	b.handleBinding("tab-1", &runtime.EventBindingCalled{Name: activatedBinding, Payload: `not json`})
	b.handleEvent("tab-1", nil, &runtime.EventBindingCalled{Name: activatedBinding, Payload: `{"url":"https://a.example/"}`})

	select {
	case a := <-got:
		if a.tabID != "tab-1" || a.url != "https://a.example/" {
			t.Fatalf("activation = %+v; want tab-1 https://a.example/", a)
		}
	case <-time.After(time.Second):
		t.Fatal("activation not dispatched")
	}
	select {
	case a := <-got:
		t.Fatalf("unexpected activation %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleBindingWithoutCallback(t *testing.T) {
	b := New("http://127.0.0.1:9220", time.Second)
	b.handleBinding("tab-1", &runtime.EventBindingCalled{Name: activatedBinding, Payload: `{"url":"https://a.example/"}`})
}

func TestWatchRequiresStart(t *testing.T) {
	b := New("http://127.0.0.1:9220", time.Second)
	if err := b.Watch(context.Background(), "tab-1", true); err == nil || !strings.Contains(err.Error(), "not started") {
		t.Fatalf("Watch() error = %v; want not started", err)
	}
}
