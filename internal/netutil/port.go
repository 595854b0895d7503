package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const fallbackSpan = 10

// SelectBindAddr returns preferred when it can be listened on, otherwise the
// first free candidate when autoFallback is set.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		if IsAddrAvailable(preferred) {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if IsAddrAvailable(addr) {
			return addr, nil
		}
	}

	return "", errors.New("no available api bind addresses")
}

// Candidates parses a comma separated list of host:port or bare ports. Bare
// ports inherit the host of preferred. An empty list yields the ten ports
// following preferred's port.
func Candidates(preferred, list string) ([]string, error) {
	host, portStr, err := net.SplitHostPort(preferred)
	if err != nil {
		return nil, fmt.Errorf("bind address %q: %w", preferred, err)
	}

	var out []string
	if strings.TrimSpace(list) == "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("bind address %q: invalid port", preferred)
		}
		for i := 1; i <= fallbackSpan; i++ {
			out = append(out, net.JoinHostPort(host, strconv.Itoa(port+i)))
		}
		return out, nil
	}

	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, err := strconv.Atoi(item); err == nil {
			out = append(out, net.JoinHostPort(host, item))
			continue
		}
		if _, _, err := net.SplitHostPort(item); err != nil {
			return nil, fmt.Errorf("port candidate %q: %w", item, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// IsAddrAvailable reports whether addr can be listened on.
func IsAddrAvailable(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
