// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// MaxPendingBytes caps the carry-over buffer between reads. A provider
// that never sends a blank-line delimiter would otherwise grow the
// buffer without bound.
const MaxPendingBytes = 64 * 1024

// ErrBufferOverflow is returned by Feed when the carry-over buffer
// exceeds MaxPendingBytes without a complete block.
var ErrBufferOverflow = errors.New("stream block exceeds buffer limit")

// blockDelimiter splits the upstream byte stream into SSE blocks.
// Tolerates LF and CRLF, including mixed, like the browsers do.
var blockDelimiter = regexp.MustCompile(`\r?\n\r?\n`)

// heartbeatPrefix matches OpenRouter's keepalive lines.
const heartbeatPrefix = "OPENROUTER PROCESSING"

// EventType discriminates normalized stream events.
type EventType int

const (
	// EventDelta carries a text fragment of the assistant reply.
	EventDelta EventType = iota
	// EventDone marks the end of the reply. Emitted at most once.
	EventDone
)

// Event is one normalized event decoded from the upstream stream.
type Event struct {
	Type EventType
	Text string
}

// StreamDecoder re-frames an upstream SSE byte stream into normalized
// events, independent of how the bytes were chunked by the network.
//
// Bytes are accumulated until a blank-line delimiter completes a block;
// the trailing partial block is carried over to the next Feed. Because
// splitting happens on byte level at newline boundaries, multi-byte
// UTF-8 sequences are never cut inside a decoded payload.
//
// The decoder is single-use. After the done event has been produced it
// ignores further input.
type StreamDecoder struct {
	pending    []byte
	done       bool
	maxPending int
}

// NewStreamDecoder creates a decoder with the default buffer cap.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{maxPending: MaxPendingBytes}
}

// Done reports whether the done event has been produced.
func (d *StreamDecoder) Done() bool { return d.done }

// Feed consumes one network read and returns the events completed by it.
//
// Returns ErrBufferOverflow when the carry-over buffer grows past the
// cap without a delimiter; the stream should be aborted in that case.
func (d *StreamDecoder) Feed(p []byte) ([]Event, error) {
	if d.done {
		return nil, nil
	}

	d.pending = append(d.pending, p...)

	var events []Event
	start := 0
	for _, loc := range blockDelimiter.FindAllIndex(d.pending, -1) {
		events = append(events, d.decodeBlock(string(d.pending[start:loc[0]]))...)
		start = loc[1]
		if d.done {
			d.pending = nil
			return events, nil
		}
	}
	d.pending = d.pending[start:]

	if len(d.pending) > d.maxPending {
		return events, ErrBufferOverflow
	}
	return events, nil
}

// Finish flushes the trailing partial block at end of stream and
// guarantees the done event if it has not been produced yet.
func (d *StreamDecoder) Finish() []Event {
	if d.done {
		return nil
	}

	events := d.decodeBlock(string(d.pending))
	d.pending = nil

	if !d.done {
		d.done = true
		events = append(events, Event{Type: EventDone})
	}
	return events
}

// decodeBlock walks the lines of one complete block.
func (d *StreamDecoder) decodeBlock(block string) []Event {
	var events []Event

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, heartbeatPrefix) || strings.HasPrefix(upper, ": "+heartbeatPrefix) {
			continue
		}

		if line == "data: [DONE]" || line == "[DONE]" {
			if !d.done {
				d.done = true
				events = append(events, Event{Type: EventDone})
			}
			return events
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimLeft(strings.TrimPrefix(line, "data:"), " ")

		if text := extractDelta(payload); text != "" {
			events = append(events, Event{Type: EventDelta, Text: text})
		}
	}
	return events
}

// streamChunk mirrors the payload shapes providers actually send.
// Fields stay raw because "delta" is sometimes a plain string and
// sometimes an object with a content field, and the presence of a
// choices array matters even when it is empty.
type streamChunk struct {
	Choices json.RawMessage `json:"choices"`
	Delta   json.RawMessage `json:"delta"`
}

type chunkChoice struct {
	Delta json.RawMessage `json:"delta"`
	Text  string          `json:"text"`
}

// extractDelta pulls the text fragment out of one data payload.
//
// Recognized shapes, in order: choices[].delta (string or object with
// content), choices[].text, top-level delta. Fragments across choices
// of one payload are concatenated. A payload that parses as none of
// these is forwarded verbatim so a future provider format degrades to
// visible raw text instead of silence.
func extractDelta(payload string) string {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return payload
	}

	if len(chunk.Choices) > 0 && string(chunk.Choices) != "null" {
		var choices []chunkChoice
		if err := json.Unmarshal(chunk.Choices, &choices); err == nil {
			var b strings.Builder
			for _, choice := range choices {
				if text, ok := decodeDeltaValue(choice.Delta); ok {
					b.WriteString(text)
				} else {
					b.WriteString(choice.Text)
				}
			}
			return b.String()
		}
	}

	if text, ok := decodeDeltaValue(chunk.Delta); ok {
		return text
	}

	// Parsed, but no recognized shape; forward raw.
	return payload
}

// decodeDeltaValue decodes a delta field that is either a JSON string
// or an object carrying a content field.
func decodeDeltaValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content, true
	}

	return "", false
}
