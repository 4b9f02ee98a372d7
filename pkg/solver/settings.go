package solver

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Settings is the declarative key/value configuration consumed by the
// solver. solverd never interprets the keys; the document is read only for
// diagnostics (doctor, status surfaces) and otherwise passed through as a
// file path.
type Settings map[string]string

// LoadSettings parses a cpsolver settings document. The format is Java
// properties style: one key=value per line, #-prefixed comments, blank
// lines ignored.
func LoadSettings(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings document: %w", err)
	}
	defer func() { _ = f.Close() }()

	out := make(Settings)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("settings line %d is not key=value: %q", lineNo, line)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read settings document: %w", err)
	}
	return out, nil
}

// Keys returns the setting keys in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
