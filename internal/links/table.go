// Package links rewrites known link hosts in chat messages.
package links

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Rule replaces Host with Replacement. Both are plain substrings, not patterns.
type Rule struct {
	Host        string
	Replacement string
}

// DefaultRules seed the table when no replacements file exists.
var DefaultRules = []Rule{
	{Host: "instagram.com", Replacement: "instagramez.com"},
	{Host: "x.com", Replacement: "fixupx.com"},
	{Host: "bsky.app", Replacement: "bskyx.app"},
	{Host: "vt.tiktok.com", Replacement: "vt.vxtiktok.com"},
}

// Table is the host replacement table, kept in load/insertion order and
// backed by a JSON object on disk. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	path  string
	rules []Rule
}

// NewTable returns an in-memory table holding a copy of rules.
// An empty path disables Save.
func NewTable(path string, rules []Rule) *Table {
	return &Table{path: path, rules: append([]Rule(nil), rules...)}
}

// LoadTable reads the replacements file at path.
// A missing file, or one holding null, yields DefaultRules.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewTable(path, DefaultRules), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read replacements file: %w", err)
	}

	rules, err := decodeRules(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse replacements file %s: %w", path, err)
	}
	if rules == nil {
		rules = DefaultRules
	}

	return NewTable(path, rules), nil
}

// Rules returns a snapshot of the rules in table order.
func (t *Table) Rules() []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Rule(nil), t.rules...)
}

// Add sets the replacement for host and saves the table.
// An existing host keeps its position.
func (t *Table) Add(host, replacement string) error {
	if host == "" || replacement == "" {
		return fmt.Errorf("host and replacement must not be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	found := false
	for i := range t.rules {
		if t.rules[i].Host == host {
			t.rules[i].Replacement = replacement
			found = true
			break
		}
	}
	if !found {
		t.rules = append(t.rules, Rule{Host: host, Replacement: replacement})
	}

	return t.saveLocked()
}

// Remove deletes the rule for host and saves the table.
// It reports whether a rule was removed; the file is rewritten either way.
func (t *Table) Remove(host string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := false
	for i := range t.rules {
		if t.rules[i].Host == host {
			t.rules = append(t.rules[:i], t.rules[i+1:]...)
			removed = true
			break
		}
	}

	return removed, t.saveLocked()
}

// Save writes the whole table to its file.
func (t *Table) Save() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.saveLocked()
}

func (t *Table) saveLocked() error {
	if t.path == "" {
		return nil
	}

	data, err := encodeRules(t.rules)
	if err != nil {
		return fmt.Errorf("failed to encode replacements: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create replacements directory: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write replacements file: %w", err)
	}

	return nil
}

// decodeRules reads a JSON object of host -> replacement, keeping key order.
// A literal null returns nil rules.
func decodeRules(data []byte) ([]Rule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	rules := []Rule{}
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		host, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string key, got %v", tok)
		}

		var replacement string
		if err := dec.Decode(&replacement); err != nil {
			return nil, fmt.Errorf("invalid replacement for %q: %w", host, err)
		}

		// Duplicate keys: last value wins, first position is kept.
		if i, exists := index[host]; exists {
			rules[i].Replacement = replacement
			continue
		}
		index[host] = len(rules)
		rules = append(rules, Rule{Host: host, Replacement: replacement})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return rules, nil
}

// encodeRules writes rules as an indented JSON object in table order.
func encodeRules(rules []Rule) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, rule := range rules {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(rule.Host)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(rule.Replacement)
		if err != nil {
			return nil, err
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(value)
	}
	if len(rules) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
