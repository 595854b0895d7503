package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultIgnorePrefixes are browser-internal pages that are never monitored.
var DefaultIgnorePrefixes = []string{
	"chrome://",
	"devtools://",
	"about:",
	"chrome-extension://",
}

// IgnoreRules selects URLs the monitor leaves alone.
type IgnoreRules struct {
	Prefixes []string `yaml:"prefixes"`
	Contains []string `yaml:"contains"`
}

// DefaultIgnoreRules returns the built-in rules.
func DefaultIgnoreRules() *IgnoreRules {
	return &IgnoreRules{Prefixes: append([]string(nil), DefaultIgnorePrefixes...)}
}

// LoadIgnoreRules merges the YAML file at path into the defaults. A missing
// file yields the defaults.
func LoadIgnoreRules(path string) (*IgnoreRules, error) {
	rules := DefaultIgnoreRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rules, nil
		}
		return nil, fmt.Errorf("ignore config: %w", err)
	}
	var file IgnoreRules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ignore config: %w", err)
	}
	for i, p := range file.Prefixes {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("ignore config: prefixes[%d] is empty", i)
		}
	}
	for i, c := range file.Contains {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("ignore config: contains[%d] is empty", i)
		}
	}
	rules.Prefixes = append(rules.Prefixes, file.Prefixes...)
	rules.Contains = append(rules.Contains, file.Contains...)
	return rules, nil
}

// Ignored reports whether url matches any rule.
func (r *IgnoreRules) Ignored(url string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Prefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	for _, c := range r.Contains {
		if strings.Contains(url, c) {
			return true
		}
	}
	return false
}
