// Package notify is the status and error surface: every operation reports one
// human-readable status line, failures additionally carry their error kind.
package notify

import (
	"sync"
	"time"

	"github.com/dlcy/iptv-hunan/internal/domain"
	"github.com/dlcy/iptv-hunan/internal/logger"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Event is one status update.
type Event struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Op      string    `json:"op"`             // sync, import, play, stop, handoff, ...
	Kind    string    `json:"kind,omitempty"` // error taxonomy name for failures
	Message string    `json:"message"`
}

const subscriberBuffer = 32

// Hub keeps the latest status and fans events out to subscribers.
// Publishing never blocks: a subscriber that falls behind loses events.
type Hub struct {
	log logger.Logger

	mu     sync.RWMutex
	last   Event
	subs   map[int]chan Event
	nextID int
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{log: log, subs: make(map[int]chan Event)}
}

// Status reports a successful or informational outcome.
func (h *Hub) Status(op, msg string) {
	h.publish(Event{Level: LevelInfo, Op: op, Message: msg})
}

// Failure reports err with its taxonomy kind; msg is the user-facing line.
func (h *Hub) Failure(op, msg string, err error) {
	h.publish(Event{Level: LevelError, Op: op, Kind: domain.Kind(err), Message: msg + ": " + err.Error()})
}

func (h *Hub) publish(ev Event) {
	ev.Time = time.Now()

	if ev.Level == LevelError {
		h.log.Warn(ev.Message, logger.String("op", ev.Op), logger.String("kind", ev.Kind))
	} else {
		h.log.Info(ev.Message, logger.String("op", ev.Op))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = ev
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Last returns the most recent event.
func (h *Hub) Last() Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}
