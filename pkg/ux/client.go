// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Turn is one conversation turn sent to the relay.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatBody is the request body for both relay chat endpoints.
type chatBody struct {
	Messages  []Turn `json:"messages"`
	SessionID string `json:"sessionId,omitempty"`
	Save      bool   `json:"save,omitempty"`
	Model     string `json:"model,omitempty"`
}

// chatReply is the success body of the buffered endpoint.
type chatReply struct {
	Assistant string `json:"assistant"`
}

// apiError is the error body of the buffered endpoint.
type apiError struct {
	Code        string `json:"error"`
	Detail      string `json:"detail,omitempty"`
	UserMessage string `json:"userMessage,omitempty"`
}

// Client talks to a running relay service.
type Client struct {
	BaseURL string
	Model   string
	HTTP    *http.Client

	// Processor consumes the SSE response of Stream. Defaults to a
	// stdout-echoing processor.
	Processor StreamProcessor
}

// NewClient creates a client for the given relay base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:   baseURL,
		HTTP:      &http.Client{},
		Processor: NewStreamProcessor(),
	}
}

// Stream sends the conversation to the streaming endpoint and consumes
// the SSE response. Returns the assembled answer.
func (c *Client) Stream(ctx context.Context, turns []Turn, sessionID string) (string, error) {
	resp, err := c.post(ctx, "/api/ai/stream", chatBody{
		Messages:  turns,
		SessionID: sessionID,
		Model:     c.Model,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", fmt.Errorf("stream endpoint returned %d: %s", resp.StatusCode, body)
	}

	result, err := c.Processor.Process(resp.Body)
	if err != nil {
		return "", err
	}
	return result.Answer, nil
}

// Ask sends the conversation to the buffered endpoint and returns the
// canonical assistant answer.
func (c *Client) Ask(ctx context.Context, turns []Turn, sessionID string, save bool) (string, error) {
	resp, err := c.post(ctx, "/api/ai/chat", chatBody{
		Messages:  turns,
		SessionID: sessionID,
		Save:      save,
		Model:     c.Model,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Code != "" {
			return "", &ServerError{
				Code:        apiErr.Code,
				Detail:      apiErr.Detail,
				UserMessage: apiErr.UserMessage,
			}
		}
		return "", fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, body)
	}

	var reply chatReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return reply.Assistant, nil
}

// Exchange streams the answer for immediate display, then fetches the
// buffered canonical answer which replaces the streamed text. The
// streamed fragments are a preview; the buffered reply is what gets
// persisted and returned.
func (c *Client) Exchange(ctx context.Context, turns []Turn, sessionID string, save bool) (string, error) {
	streamed, streamErr := c.Stream(ctx, turns, sessionID)

	canonical, err := c.Ask(ctx, turns, sessionID, save)
	if err != nil {
		if streamErr == nil && streamed != "" {
			// Keep the preview when only the reconcile call failed.
			return streamed, nil
		}
		return "", err
	}
	return canonical, nil
}

func (c *Client) post(ctx context.Context, path string, body chatBody) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	return resp, nil
}
