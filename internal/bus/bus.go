// Package bus is the process-wide publish/subscribe channel for the two
// domain events that cross component boundaries. Events carry no payload:
// subscribers re-read the session store or re-fetch rather than trusting
// anything broadcast here.
package bus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Event string

const (
	AuthChanged        Event = "authChanged"
	AppointmentCreated Event = "appointmentCreated"
)

type Handler func()

type Bus struct {
	mu   sync.Mutex
	subs map[Event]map[string]Handler
	log  *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[Event]map[string]Handler),
		log:  logger,
	}
}

// Subscribe registers a handler and returns a token for Unsubscribe.
func (b *Bus) Subscribe(ev Event, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	if b.subs[ev] == nil {
		b.subs[ev] = make(map[string]Handler)
	}
	b.subs[ev][id] = h
	return id
}

func (b *Bus) Unsubscribe(ev Event, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[ev], id)
}

// Publish delivers the event to every subscriber in turn. Handlers run
// outside the bus lock so they may subscribe or publish themselves; a panic
// in one handler is logged and does not starve the rest.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[ev]))
	for _, h := range b.subs[ev] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.call(ev, h)
	}
}

func (b *Bus) call(ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("event", string(ev)), zap.Any("panic", r))
		}
	}()
	h()
}
