package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/jsralgo/fxvault/internal/storage"
)

// Broker fans out Postgres LISTEN/NOTIFY messages to SSE subscribers.
// It runs a background goroutine that calls db.WaitForNotification in a loop
// and routes each notification payload to the channels of the user it
// belongs to. Notifications are per-user, so unlike a plain broadcast the
// broker decodes the payload to find the recipient.
type Broker struct {
	db     *storage.DB
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]int64 // channel -> user ID
}

// NewBroker creates a new SSE broker. Call Start to begin listening.
func NewBroker(db *storage.DB, logger *slog.Logger) *Broker {
	return &Broker{
		db:          db,
		logger:      logger,
		subscribers: make(map[chan []byte]int64),
	}
}

// Start begins listening on the notifications channel.
// It blocks, so call it in a goroutine. Returns when ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	if err := b.db.Listen(ctx, storage.ChannelNotifications); err != nil {
		b.logger.Error("broker: listen notifications", "error", err)
		return
	}

	b.logger.Info("broker: listening for notifications",
		"channel", storage.ChannelNotifications)

	for {
		_, payload, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // Shutting down.
			}
			b.logger.Warn("broker: notification error, retrying", "error", err)
			continue
		}

		b.dispatch(payload)
	}
}

// Subscribe returns a channel that receives SSE-formatted events for the
// given user. The caller must call Unsubscribe when done.
func (b *Broker) Subscribe(userID int64) chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the dispatch loop.
	b.mu.Lock()
	b.subscribers[ch] = userID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// dispatch decodes the notification payload and sends the SSE event only to
// subscribers registered for the recipient user. Slow subscribers with a
// full buffer are skipped (their event is dropped) to prevent one slow
// client from blocking all others.
func (b *Broker) dispatch(payload string) {
	var envelope struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		b.logger.Warn("broker: undecodable notification payload", "error", err)
		return
	}

	event := formatSSE("notification", payload)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, userID := range b.subscribers {
		if userID != envelope.UserID {
			continue
		}
		select {
		case ch <- event:
		default:
			// Subscriber buffer full — drop this event for them.
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
