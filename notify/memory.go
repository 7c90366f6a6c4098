package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps notifications in process until their TTL runs out.
type Memory struct {
	c   *gocache.Cache
	now func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{c: gocache.New(ttl, time.Second), now: time.Now}
}

func (m *Memory) Notify(message string, severity Severity) {
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: m.now(),
	}
	m.c.Set(n.ID, n, gocache.DefaultExpiration)
}

func (m *Memory) Active(_ context.Context) []Notification {
	items := m.c.Items()
	out := make([]Notification, 0, len(items))
	for _, item := range items {
		if n, ok := item.Object.(Notification); ok {
			out = append(out, n)
		}
	}
	sortByCreated(out)
	return out
}
