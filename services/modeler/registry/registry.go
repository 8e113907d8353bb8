// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry tracks in-flight generation requests.
//
// The registry is the only mutable structure shared between the
// generation coordinator (which appends events and marks completion) and
// the stream publisher (which drains events). Each entry has its own
// lock, so contention on one request never blocks another.
//
// # Concurrency Contract
//
// Per id there is at most one writer (the coordinator goroutine) and at
// most one drainer (the stream connection). Concurrent PushEvent and
// Drain on the same id never lose or duplicate events: both operate under
// the entry lock on a single queue.
package registry

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreatCompassAI/ThreatCompass/services/llm"
)

// Event is one queued progress event, delivered to the stream consumer in
// push order.
type Event struct {
	Type string
	Data any
}

// Terminal event types. A response or error event is always the last
// event pushed for a given id.
const (
	EventOpen       = "open"
	EventPrompt     = "prompt"
	EventWarning    = "warning"
	EventProcessing = "processing"
	EventResponse   = "response"
	EventError      = "error"
)

var (
	// ErrUnknownRequest is returned for operations on ids the registry
	// does not hold.
	ErrUnknownRequest = errors.New("unknown request id")

	// ErrAlreadyComplete is returned when MarkComplete is called twice
	// for the same id. The second call never overwrites terminal state.
	ErrAlreadyComplete = errors.New("request already marked complete")
)

type entry struct {
	mu        sync.Mutex
	startTime time.Time
	events    []Event
	complete  bool
	err       *llm.ProviderError
}

// Registry is an in-memory table of in-flight generation requests keyed
// by opaque request id.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Create registers a new request id. Creating an id that already exists
// is a logic error and is logged; the existing entry is kept.
func (r *Registry) Create(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		slog.Error("Registry entry already exists", "request_id", id)
		return
	}
	r.entries[id] = &entry{startTime: time.Now()}
}

// Exists reports whether the id is currently tracked.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// StartTime returns when the request was created.
func (r *Registry) StartTime(id string) (time.Time, bool) {
	e := r.get(id)
	if e == nil {
		return time.Time{}, false
	}
	return e.startTime, true
}

// PushEvent appends a progress event to the request's queue.
func (r *Registry) PushEvent(id, eventType string, data any) error {
	e := r.get(id)
	if e == nil {
		return ErrUnknownRequest
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, Event{Type: eventType, Data: data})
	return nil
}

// Drain removes and returns all queued events for the id, FIFO. Returns
// nil for unknown ids.
func (r *Registry) Drain(id string) []Event {
	e := r.get(id)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return nil
	}
	drained := e.events
	e.events = nil
	return drained
}

// MarkComplete sets the terminal state for the id. perr is nil on
// success. A second call is rejected with ErrAlreadyComplete and logged;
// the first terminal state always wins.
func (r *Registry) MarkComplete(id string, perr *llm.ProviderError) error {
	e := r.get(id)
	if e == nil {
		return ErrUnknownRequest
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.complete {
		slog.Error("MarkComplete called twice for request", "request_id", id)
		return ErrAlreadyComplete
	}
	e.complete = true
	e.err = perr
	return nil
}

// IsComplete reports whether the request has reached terminal state.
func (r *Registry) IsComplete(id string) bool {
	e := r.get(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

// Error returns the terminal error for the id, or nil when the request
// is still running or completed successfully.
func (r *Registry) Error(id string) *llm.ProviderError {
	e := r.get(id)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Remove deletes the entry. Safe to call for unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of tracked requests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) get(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}
