// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"strings"
	"testing"
)

// collect feeds the whole input in chunks of the given size and appends
// Finish's events, mimicking a sequence of network reads.
func collect(t *testing.T, input string, chunkSize int) []Event {
	t.Helper()

	dec := NewStreamDecoder()
	var events []Event

	data := []byte(input)
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		evts, err := dec.Feed(data[start:end])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		events = append(events, evts...)
	}
	return append(events, dec.Finish()...)
}

func deltasOf(events []Event) []string {
	var out []string
	for _, e := range events {
		if e.Type == EventDelta {
			out = append(out, e.Text)
		}
	}
	return out
}

func countDone(events []Event) int {
	n := 0
	for _, e := range events {
		if e.Type == EventDone {
			n++
		}
	}
	return n
}

func TestStreamDecoderBasicStream(t *testing.T) {
	t.Parallel()

	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	events := collect(t, input, len(input))
	if got := deltasOf(events); strings.Join(got, "") != "Hello" {
		t.Errorf("deltas = %q, want Hello", got)
	}
	if countDone(events) != 1 {
		t.Errorf("done events = %d, want 1", countDone(events))
	}
}

func TestStreamDecoderChunkSplitInvariance(t *testing.T) {
	t.Parallel()

	// The same byte stream must decode to the same events regardless of
	// how the network fragmented it.
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"Solo argiloso \"}}]}\r\n\r\n" +
		": OPENROUTER PROCESSING\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"retém água.\"}}]}\n\n" +
		"data: {\"choices\":[]}\n\n" +
		"data: [DONE]\n\n"

	reference := collect(t, input, len(input))

	for _, size := range []int{1, 2, 3, 7, 16, 64} {
		events := collect(t, input, size)
		if len(events) != len(reference) {
			t.Fatalf("chunk size %d: %d events, want %d", size, len(events), len(reference))
		}
		for i := range events {
			if events[i] != reference[i] {
				t.Errorf("chunk size %d: event %d = %+v, want %+v", size, i, events[i], reference[i])
			}
		}
	}

	if got := strings.Join(deltasOf(reference), ""); got != "Solo argiloso retém água." {
		t.Errorf("assembled text = %q", got)
	}
}

func TestStreamDecoderMultiByteRuneSplit(t *testing.T) {
	t.Parallel()

	// Feeding one byte at a time cuts UTF-8 sequences mid-rune on the
	// wire; the decoded deltas must still come out intact.
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"ação\"}}]}\n\ndata: [DONE]\n\n"

	events := collect(t, input, 1)
	if got := strings.Join(deltasOf(events), ""); got != "ação" {
		t.Errorf("deltas = %q, want %q", got, "ação")
	}
}

func TestStreamDecoderDoneVariants(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"data: [DONE]\n\n",
		"[DONE]\n\n",
	} {
		events := collect(t, input, len(input))
		if countDone(events) != 1 {
			t.Errorf("input %q: done events = %d, want 1", input, countDone(events))
		}
	}
}

func TestStreamDecoderDoneEmittedOnce(t *testing.T) {
	t.Parallel()

	dec := NewStreamDecoder()
	events, err := dec.Feed([]byte("data: [DONE]\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if countDone(events) != 1 {
		t.Fatalf("done events = %d, want 1", countDone(events))
	}
	if len(deltasOf(events)) != 0 {
		t.Error("deltas after done must be dropped")
	}
	if !dec.Done() {
		t.Error("Done() must report true")
	}

	// Further input and Finish are both no-ops.
	if more, _ := dec.Feed([]byte("data: {\"delta\":\"x\"}\n\n")); len(more) != 0 {
		t.Errorf("Feed after done produced %d events", len(more))
	}
	if more := dec.Finish(); len(more) != 0 {
		t.Errorf("Finish after done produced %d events", len(more))
	}
}

func TestStreamDecoderFinishWithoutDone(t *testing.T) {
	t.Parallel()

	// Upstream closed without a [DONE] marker; Finish flushes the
	// partial block and supplies the terminal event.
	dec := NewStreamDecoder()
	events, err := dec.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("incomplete block produced %d events", len(events))
	}

	final := dec.Finish()
	if got := deltasOf(final); len(got) != 1 || got[0] != "partial" {
		t.Errorf("flushed deltas = %q", got)
	}
	if countDone(final) != 1 {
		t.Errorf("done events = %d, want 1", countDone(final))
	}
}

func TestStreamDecoderHeartbeatSkipped(t *testing.T) {
	t.Parallel()

	input := "OPENROUTER PROCESSING\n\n" +
		": openrouter processing\n\n" +
		"data: {\"delta\":\"ok\"}\n\n" +
		"data: [DONE]\n\n"

	events := collect(t, input, len(input))
	if got := deltasOf(events); len(got) != 1 || got[0] != "ok" {
		t.Errorf("deltas = %q, want [ok]", got)
	}
}

func TestStreamDecoderPayloadShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
		want    []string
	}{
		{"delta object", `{"choices":[{"delta":{"content":"a"}}]}`, []string{"a"}},
		{"delta string", `{"choices":[{"delta":"b"}]}`, []string{"b"}},
		{"choice text", `{"choices":[{"text":"c"}]}`, []string{"c"}},
		{"top-level delta", `{"delta":"d"}`, []string{"d"}},
		{"top-level delta object", `{"delta":{"content":"e"}}`, []string{"e"}},
		{"multiple choices", `{"choices":[{"delta":"f"},{"text":"g"}]}`, []string{"fg"}},
		{"empty choices", `{"choices":[]}`, nil},
		{"empty delta content", `{"choices":[{"delta":{"content":""}}]}`, nil},
		{"not json", `plain text fragment`, []string{"plain text fragment"}},
		{"unrecognized shape", `{"usage":{"total_tokens":9}}`, []string{`{"usage":{"total_tokens":9}}`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewStreamDecoder()
			events, err := dec.Feed([]byte("data: " + tc.payload + "\n\n"))
			if err != nil {
				t.Fatalf("Feed: %v", err)
			}
			got := deltasOf(events)
			if len(got) != len(tc.want) {
				t.Fatalf("deltas = %q, want %q", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("delta %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestStreamDecoderNonDataLinesIgnored(t *testing.T) {
	t.Parallel()

	input := "event: message\nid: 42\ndata: {\"delta\":\"kept\"}\n\ndata: [DONE]\n\n"

	events := collect(t, input, len(input))
	if got := deltasOf(events); len(got) != 1 || got[0] != "kept" {
		t.Errorf("deltas = %q, want [kept]", got)
	}
}

func TestStreamDecoderBufferOverflow(t *testing.T) {
	t.Parallel()

	dec := NewStreamDecoder()
	// A single runaway block with no delimiter.
	junk := []byte(strings.Repeat("x", MaxPendingBytes+1))

	if _, err := dec.Feed(junk); err != ErrBufferOverflow {
		t.Errorf("err = %v, want ErrBufferOverflow", err)
	}
}

func TestStreamDecoderDelimiterResetsBuffer(t *testing.T) {
	t.Parallel()

	dec := NewStreamDecoder()
	// Many complete blocks totalling more than the cap must not trip the
	// limit; only an undelimited block counts.
	block := []byte("data: {\"delta\":\"y\"}\n\n")
	for written := 0; written < 2*MaxPendingBytes; written += len(block) {
		if _, err := dec.Feed(block); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
}
