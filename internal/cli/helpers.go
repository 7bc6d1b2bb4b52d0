package cli

import (
	"github.com/nextgensh/mdh-export/internal/export"
	"github.com/nextgensh/mdh-export/internal/store"
)

func statusIcon(status string) string {
	switch status {
	case store.StatusCompleted:
		return "✓"
	case store.StatusRunning:
		return "▶"
	case store.StatusFailed:
		return "✗"
	case store.StatusInterrupted:
		return "⏸"
	default:
		return "○"
	}
}

func outcomeIcon(o export.Outcome) string {
	if o.Failed() {
		return statusIcon(store.StatusFailed)
	}
	return statusIcon(store.StatusCompleted)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
