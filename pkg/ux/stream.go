// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux implements the terminal client side of the relay: an SSE
// stream consumer and small presentation helpers for the CLI.
package ux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ServerError is an error frame received on the stream.
type ServerError struct {
	Code        string `json:"error"`
	Detail      string `json:"detail,omitempty"`
	UserMessage string `json:"userMessage,omitempty"`
}

func (e *ServerError) Error() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Code
}

// StreamResult contains the complete result of processing a stream.
type StreamResult struct {
	// Answer is the concatenation of all delta fragments.
	Answer string
}

// StreamProcessor defines the interface for consuming a relay stream.
type StreamProcessor interface {
	// Process reads the SSE response until done, end of input, or an
	// error frame. An error frame discards any partial answer and is
	// returned as a *ServerError.
	Process(reader io.Reader) (*StreamResult, error)
}

// sseStreamProcessor implements StreamProcessor for the relay's SSE
// framing: unnamed data frames carry {"delta": "..."} fragments, named
// done/error events terminate the stream.
type sseStreamProcessor struct {
	writer io.Writer
	echo   bool
	answer strings.Builder
}

// NewStreamProcessor creates a processor that echoes deltas to stdout
// as they arrive.
func NewStreamProcessor() StreamProcessor {
	return &sseStreamProcessor{writer: os.Stdout, echo: true}
}

// NewStreamProcessorWithWriter creates a processor with a custom writer
// and echo behavior (for testing and non-TTY output).
func NewStreamProcessorWithWriter(w io.Writer, echo bool) StreamProcessor {
	return &sseStreamProcessor{writer: w, echo: echo}
}

// deltaFrame is the payload of an unnamed data frame.
type deltaFrame struct {
	Delta string `json:"delta"`
}

// Process reads and processes a streaming response.
func (p *sseStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)

	// SSE state: the event name applies to the data lines that follow
	// it until the next blank line. Unnamed frames are deltas.
	eventName := ""

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			eventName = ""
			continue
		}

		// Comment lines are keepalives.
		if strings.HasPrefix(line, ":") {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimLeft(strings.TrimPrefix(line, "data:"), " ")

		switch eventName {
		case "done":
			p.finalize()
			return &StreamResult{Answer: p.answer.String()}, nil

		case "error":
			p.finalize()
			serverErr := &ServerError{}
			if err := json.Unmarshal([]byte(payload), serverErr); err != nil {
				serverErr.Code = payload
			}
			return nil, serverErr

		default:
			p.handleDelta(payload)
		}
	}

	if err := scanner.Err(); err != nil {
		p.finalize()
		return nil, err
	}

	// Stream ended without an explicit done event.
	p.finalize()
	return &StreamResult{Answer: p.answer.String()}, nil
}

// handleDelta appends one fragment. A payload that is not the expected
// JSON shape is treated as raw text rather than dropped.
func (p *sseStreamProcessor) handleDelta(payload string) {
	var frame deltaFrame
	text := payload
	if err := json.Unmarshal([]byte(payload), &frame); err == nil {
		text = frame.Delta
	}
	if text == "" {
		return
	}

	p.answer.WriteString(text)
	if p.echo {
		fmt.Fprint(p.writer, text)
	}
}

func (p *sseStreamProcessor) finalize() {
	if p.echo && p.answer.Len() > 0 && !strings.HasSuffix(p.answer.String(), "\n") {
		fmt.Fprintln(p.writer)
	}
}
