// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the relay service.
//
// This file contains request and response types for the chat endpoints
// plus the message normalization rules shared by the buffered and
// streaming paths. For the contact form types, see contact.go.
package datatypes

import (
	"encoding/json"
	"strconv"
	"strings"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageRunes is the maximum content length of a single message.
	// Longer content is truncated, not rejected.
	MaxMessageRunes = 10000

	// MaxMessagesPerRequest is the maximum number of conversation turns
	// accepted in one request. Requests above this are rejected.
	MaxMessagesPerRequest = 50

	// DefaultModel is used when the client omits the model or requests
	// one outside the allow-list.
	DefaultModel = "gpt-4o-mini"
)

// Message roles. Anything else is coerced to RoleUser during normalization.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// allowedModels is the set of model identifiers clients may request.
// Unknown identifiers silently fall back to DefaultModel.
var allowedModels = map[string]bool{
	"gpt-4o-mini":     true,
	"gpt-4o":          true,
	"gpt-3.5-turbo":   true,
	"claude-3-haiku":  true,
	"claude-3-sonnet": true,
}

// =============================================================================
// Chat Request / Response Types
// =============================================================================

// Message is a single normalized conversation turn as sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the body accepted by POST /api/ai/chat and
// POST /api/ai/stream.
//
// # Description
//
// Messages is kept as raw JSON on purpose: clients send all kinds of
// shapes (numbers as content, objects, null entries) and the contract is
// to salvage what can be salvaged rather than reject the request. Shape
// errors surface only when the array itself is missing or empty.
//
// # Fields
//
//   - Messages: Required. JSON array of conversation turns. Elements are
//     normalized via NormalizeMessages; the array itself must be non-empty
//     and hold at most MaxMessagesPerRequest elements.
//   - SessionID: Optional. Opaque session identifier used for persistence.
//   - Save: Optional. When true and SessionID is set, the exchange is
//     persisted after a successful completion (buffered endpoint only).
//   - Model: Optional. Requested model identifier, mapped through the
//     allow-list via ResolveModel.
type ChatRequest struct {
	Messages  json.RawMessage `json:"messages"`
	SessionID string          `json:"sessionId"`
	Save      bool            `json:"save"`
	Model     string          `json:"model"`
}

// ChatResponse is the success body of POST /api/ai/chat.
//
// Assistant carries the extracted text; Raw carries the upstream body
// verbatim (parsed JSON when possible, the raw text otherwise) so that
// clients can inspect usage data or provider metadata.
type ChatResponse struct {
	Assistant string          `json:"assistant"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// ErrorResponse is the error body shared by all JSON endpoints.
//
// Error is a stable machine-readable code. UserMessage is a localized
// (pt-BR) string safe to render directly in the product UI. Detail
// carries upstream diagnostics and is for logging/debugging only.
type ErrorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	Detail      string `json:"detail,omitempty"`
	UserMessage string `json:"userMessage,omitempty"`
}

// CountMessages reports how many elements the messages payload holds
// and whether it is a JSON array at all. Used for the array/size checks
// that run before normalization.
func CountMessages(raw json.RawMessage) (int, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return 0, false
	}
	return len(elems), true
}

// =============================================================================
// Normalization
// =============================================================================

// NormalizeMessages converts an untrusted messages payload into a clean
// slice of Message values.
//
// # Description
//
// Total over arbitrary JSON: it never fails, it only drops or coerces.
// Rules, in order, per element:
//
//   - input that is not a JSON array yields an empty slice
//   - elements that are not objects are dropped
//   - role is kept only if it is exactly "user", "assistant" or "system";
//     anything else (missing, wrong type, unknown value) becomes "user"
//   - content is coerced to a string: strings pass through, numbers and
//     booleans are formatted, null/missing/objects/arrays become ""
//   - content is truncated to MaxMessageRunes runes
//   - elements whose content is empty or whitespace-only after the above
//     are dropped
//
// # Inputs
//
//   - raw: The messages field exactly as received, may be nil.
//
// # Outputs
//
//   - []Message: Never nil. May be empty.
func NormalizeMessages(raw json.RawMessage) []Message {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []Message{}
	}

	out := make([]Message, 0, len(elems))
	for _, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil || obj == nil {
			continue
		}

		content := truncateRunes(coerceContent(obj["content"]), MaxMessageRunes)
		if strings.TrimSpace(content) == "" {
			continue
		}

		out = append(out, Message{
			Role:    coerceRole(obj["role"]),
			Content: content,
		})
	}
	return out
}

// coerceRole maps an arbitrary role value onto one of the three known
// roles, defaulting to RoleUser.
func coerceRole(raw json.RawMessage) string {
	var role string
	if err := json.Unmarshal(raw, &role); err != nil {
		return RoleUser
	}
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return role
	default:
		return RoleUser
	}
}

// coerceContent stringifies an arbitrary content value. Scalars are
// formatted; null, objects and arrays yield "" and get dropped upstream.
func coerceContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		// null, objects, arrays
		return ""
	}
}

// truncateRunes cuts s to at most n runes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// =============================================================================
// Model Resolution
// =============================================================================

// ResolveModel maps a requested model identifier through the allow-list.
//
// Unknown or empty identifiers resolve to DefaultModel. This never
// errors: an out-of-list model is a silent downgrade, not a rejection.
func ResolveModel(requested string) string {
	if allowedModels[requested] {
		return requested
	}
	return DefaultModel
}
