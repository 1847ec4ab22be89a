// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/VerdantAI/AgroRelay/services/relay/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EventWriter defines the contract for writing the relay's SSE frames.
//
// # Description
//
// EventWriter abstracts the wire format the dashboard consumes so the
// streaming handler never touches raw bytes. The format is fixed:
//
//	delta:  data: {"delta":"..."}\n\n
//	done:   event: done\ndata: {}\n\n
//	error:  event: error\ndata: {json}\n\n
//
// Deltas carry no event name on purpose; EventSource clients receive
// them as plain messages while done/error arrive as named events.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the streaming
// handler emits keepalives from a separate goroutine.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write
type EventWriter interface {
	// WriteDelta writes one text fragment of the assistant reply.
	WriteDelta(text string) error

	// WriteDone writes the terminal done frame. Callers must ensure it
	// is written at most once per stream.
	WriteDone() error

	// WriteError writes an error frame. The stream should be closed
	// right after; no deltas may follow an error.
	WriteError(resp datatypes.ErrorResponse) error

	// WriteKeepAlive sends an SSE comment to keep intermediaries from
	// timing out the connection. Comments are invisible to clients.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// eventWriter implements EventWriter over an http.ResponseWriter.
type eventWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewEventWriter creates an EventWriter for the given ResponseWriter.
//
// Returns an error if the ResponseWriter cannot flush, in which case
// the handler should fall back to a plain HTTP error.
func NewEventWriter(w http.ResponseWriter) (EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &eventWriter{writer: w, flusher: flusher}, nil
}

func (w *eventWriter) WriteDelta(text string) error {
	payload, err := json.Marshal(struct {
		Delta string `json:"delta"`
	}{Delta: text})
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write delta: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *eventWriter) WriteDone() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.writer, "event: done\ndata: {}\n\n"); err != nil {
		return fmt.Errorf("write done: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *eventWriter) WriteError(resp datatypes.ErrorResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal error event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.writer, "event: error\ndata: %s\n\n", payload); err != nil {
		return fmt.Errorf("write error event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *eventWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures the response headers for SSE streaming.
// Must be called before any body writes.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ EventWriter = (*eventWriter)(nil)
