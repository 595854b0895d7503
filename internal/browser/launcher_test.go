package browser

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
)

func TestArgs(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9220})
	got := strings.Join(l.args(), " ")
	for _, want := range []string{
		"--remote-debugging-port=9220",
		"--remote-debugging-address=127.0.0.1",
		"--user-data-dir=./browser_profile",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("args = %q; want %q", got, want)
		}
	}

	l = NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9220, StartURL: "https://example.com/"})
	args := l.args()
	if args[len(args)-1] != "https://example.com/" {
		t.Fatalf("last arg = %q; want start url", args[len(args)-1])
	}
}

func TestLaunchSkipsWhenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: port, ProfileDir: t.TempDir()})
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if l.Running() {
		t.Fatal("Running() = true; want no spawned process on port " + strconv.Itoa(port))
	}
	l.Stop()
}
