package realtime

import (
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler receives transport events.
type Handler func(Event)

type listener struct {
	id      string
	handler Handler
}

// registry holds named-event listeners.
type registry struct {
	mu     sync.RWMutex
	byName map[EventName][]listener
	logger *zap.Logger
}

func newRegistry(logger *zap.Logger) *registry {
	return &registry{
		byName: make(map[EventName][]listener),
		logger: logger,
	}
}

func (r *registry) on(name EventName, h Handler) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.byName[name] = append(r.byName[name], listener{id: id, handler: h})
	return id
}

func (r *registry) off(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, ls := range r.byName {
		for i, l := range ls {
			if l.id == id {
				r.byName[name] = append(ls[:i:i], ls[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[EventName][]listener)
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ls := range r.byName {
		n += len(ls)
	}
	return n
}

// emit calls every listener of ev.Name in registration order. A panicking
// listener is logged and the rest still run.
func (r *registry) emit(ev Event) {
	r.mu.RLock()
	ls := make([]listener, len(r.byName[ev.Name]))
	copy(ls, r.byName[ev.Name])
	r.mu.RUnlock()

	for _, l := range ls {
		r.safeCall(l, ev)
	}
}

func (r *registry) safeCall(l listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("realtime listener panicked",
				zap.String("event", string(ev.Name)),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	l.handler(ev)
}
