// Package notify fans catalog changes out to in-process listeners.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/robinjoseph08/golib/logger"
)

// Notifier receives catalog changes once they've been committed.
type Notifier interface {
	BookAdded(ctx context.Context, bookID int)
	BookUpdated(ctx context.Context, bookID int)
	BookRemoved(ctx context.Context, bookIDs ...int)
}

type Type string

const (
	BookAdded   Type = "book.added"
	BookUpdated Type = "book.updated"
	BookRemoved Type = "book.removed"
)

type Event struct {
	Type      Type      `json:"type"`
	BookIDs   []int     `json:"book_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscription receives events until it's unsubscribed.
type Subscription <-chan Event

const defaultBufferSize = 64

// Bus is a Notifier that logs every change and hands it to each subscriber. A subscriber whose
// buffer is full misses the event rather than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	bufferSize  int
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		bufferSize:  defaultBufferSize,
	}
}

func (b *Bus) Subscribe() Subscription {
	ch := make(chan Event, b.bufferSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to sub and closes it.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		if ch == sub {
			delete(b.subscribers, ch)
			close(ch)
			return
		}
	}
}

func (b *Bus) BookAdded(ctx context.Context, bookID int) {
	b.publish(ctx, BookAdded, bookID)
}

func (b *Bus) BookUpdated(ctx context.Context, bookID int) {
	b.publish(ctx, BookUpdated, bookID)
}

func (b *Bus) BookRemoved(ctx context.Context, bookIDs ...int) {
	if len(bookIDs) == 0 {
		return
	}
	b.publish(ctx, BookRemoved, bookIDs...)
}

func (b *Bus) publish(ctx context.Context, t Type, bookIDs ...int) {
	log := logger.FromContext(ctx)
	log.Info("catalog changed", logger.Data{"event": string(t), "book_ids": bookIDs})

	event := Event{Type: t, BookIDs: bookIDs, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			log.Warn("dropping notification for slow subscriber", logger.Data{"event": string(t)})
		}
	}
}
