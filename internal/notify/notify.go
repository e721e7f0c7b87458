// Package notify is the user-visible notification sink. Notifications are
// deduplicated by ID so retried attempts and re-renders never stack the same
// message twice for one logical episode.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

type Level int

const (
	Info Level = iota
	Success
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows one message to the user per active ID. An ID stays active
// until Dismiss, mirroring a toast that dedupes while still on screen.
type Notifier interface {
	Notify(level Level, id, message string)
	Dismiss(id string)
}

// LogNotifier renders notifications to the structured log. The portal
// daemon has no toast surface; the log is the user-facing channel.
type LogNotifier struct {
	log    *zap.Logger
	mu     sync.Mutex
	active map[string]bool
}

func NewLog(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logger, active: make(map[string]bool)}
}

func (n *LogNotifier) Notify(level Level, id, message string) {
	n.mu.Lock()
	if n.active[id] {
		n.mu.Unlock()
		return
	}
	n.active[id] = true
	n.mu.Unlock()

	n.log.Info("notify",
		zap.String("level", level.String()),
		zap.String("id", id),
		zap.String("message", message))
}

func (n *LogNotifier) Dismiss(id string) {
	n.mu.Lock()
	delete(n.active, id)
	n.mu.Unlock()
}
