// Package events is a lightweight in-process pub/sub bus for domain events.
package events

import (
	"context"
	"sync"
	"time"
)

// Topic names for core domain events.
const (
	TopicConfigUpdated     = "config.updated"
	TopicCredentialChanged = "credentials.changed"
)

// Event is one published message.
type Event struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Handler processes an incoming event.
type Handler func(context.Context, Event)

// Publisher is the publish side of the hub. A nil *Hub is a valid no-op
// Publisher, so components can take one unconditionally.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// Hub fans published events out to topic subscribers, synchronously.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]Handler
	nextID int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int64]Handler)}
}

// Subscribe registers a handler for the topic and returns an unsubscribe
// function.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[int64]Handler)
	}
	h.subs[topic][id] = handler

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if handlers, ok := h.subs[topic]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(h.subs, topic)
			}
		}
	}
}

// Publish delivers the event to every subscriber of the topic on the
// calling goroutine. Handlers must not block.
func (h *Hub) Publish(ctx context.Context, topic string, payload any) {
	if h == nil {
		return
	}
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs[topic]))
	for _, handler := range h.subs[topic] {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	evt := Event{Topic: topic, Timestamp: time.Now(), Payload: payload}
	for _, handler := range handlers {
		handler(ctx, evt)
	}
}
