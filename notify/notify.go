// Package notify delivers short user-facing messages that disappear on their own.
package notify

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"crm-clients/logger"
	"crm-clients/monitoring"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 3 * time.Second

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is fire-and-forget.
type Notifier interface {
	Notify(message string, severity Severity)
}

// Feed is a Notifier whose live notifications can be listed.
type Feed interface {
	Notifier
	Active(ctx context.Context) []Notification
}

type NotifierFunc func(message string, severity Severity)

func (f NotifierFunc) Notify(message string, severity Severity) { f(message, severity) }

type logged struct {
	next Notifier
}

// WithLogging logs and counts every notification before passing it on.
func WithLogging(next Notifier) Notifier {
	return &logged{next: next}
}

func (l *logged) Notify(message string, severity Severity) {
	monitoring.Notifications.WithLabelValues(string(severity)).Inc()

	log := logger.L().With(logger.Severity(string(severity)))
	switch severity {
	case Error:
		log.Error(message)
	case Warning:
		log.Warn(message)
	default:
		log.Info(message, zap.Bool("user_facing", true))
	}

	if l.next != nil {
		l.next.Notify(message, severity)
	}
}

func sortByCreated(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].ID < ns[j].ID
		}
		return ns[i].CreatedAt.Before(ns[j].CreatedAt)
	})
}
