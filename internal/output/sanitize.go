package output

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameBytes caps a sanitized name, leaving room for a suffix and extension.
const MaxNameBytes = 120

// SanitizeName turns a value discovered from the data into a safe file stem.
// Path separators, reserved characters and control characters become "_".
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			sb.WriteRune('_')
		case unicode.IsControl(r):
			sb.WriteRune('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			sb.WriteRune('_')
		default:
			sb.WriteRune(r)
		}
	}

	s := strings.TrimSpace(sb.String())
	s = strings.TrimRight(s, ". ")
	s = truncateBytes(s, MaxNameBytes)
	s = strings.TrimRight(s, ". ")

	if s == "" {
		return "unnamed"
	}
	return s
}

// truncateBytes shortens s to at most max bytes without splitting a rune.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Namer hands out unique stems within one export directory. Stems that differ
// only in case are treated as the same file.
type Namer struct {
	used map[string]bool
}

// NewNamer returns an empty Namer.
func NewNamer() *Namer {
	return &Namer{used: make(map[string]bool)}
}

// Unique returns stem, or stem with a "_2", "_3", ... suffix if it was already used.
func (n *Namer) Unique(stem string) string {
	candidate := stem
	for i := 2; n.used[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s_%d", stem, i)
	}
	n.used[strings.ToLower(candidate)] = true
	return candidate
}
