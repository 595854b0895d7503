package netutil

import (
	"net"
	"testing"
)

func TestSelectBindAddrPreferredFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	got, err := SelectBindAddr(addr, nil, false)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != addr {
		t.Fatalf("SelectBindAddr() = %q, want %q", got, addr)
	}
}

func TestSelectBindAddrFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	free, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen free: %v", err)
	}
	freeAddr := free.Addr().String()
	_ = free.Close()

	got, err := SelectBindAddr(busy.Addr().String(), []string{busy.Addr().String(), freeAddr}, true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != freeAddr {
		t.Fatalf("SelectBindAddr() = %q, want %q", got, freeAddr)
	}
}

func TestSelectBindAddrNoFallback(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen busy: %v", err)
	}
	defer func() { _ = busy.Close() }()

	if _, err := SelectBindAddr(busy.Addr().String(), []string{"127.0.0.1:0"}, false); err == nil {
		t.Fatal("SelectBindAddr() error = nil; want preferred in use")
	}
}

func TestCandidates(t *testing.T) {
	got, err := Candidates("127.0.0.1:8190", "")
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}
	if len(got) != fallbackSpan || got[0] != "127.0.0.1:8191" || got[len(got)-1] != "127.0.0.1:8200" {
		t.Fatalf("Candidates(default) = %v", got)
	}

	got, err = Candidates("127.0.0.1:8190", "8195, 0.0.0.0:9000,")
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}
	if len(got) != 2 || got[0] != "127.0.0.1:8195" || got[1] != "0.0.0.0:9000" {
		t.Fatalf("Candidates(list) = %v", got)
	}

	if _, err := Candidates("127.0.0.1:8190", "not-an-addr"); err == nil {
		t.Fatal("Candidates(invalid) error = nil")
	}
}
