// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package upstream talks to the OpenRouter chat completion API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/VerdantAI/AgroRelay/services/relay/datatypes"
)

const (
	defaultAPIURL  = "https://openrouter.ai/api/v1/chat/completions"
	defaultReferer = "https://agroinsight.verdantai.com.br"
	appTitle       = "Verdant Agro Insight"

	// defaultTemperature keeps answers conservative; the product surface
	// is agronomic guidance, not creative writing.
	defaultTemperature = 0.2
)

// Mock replies served when no API key is configured. Degraded mode is
// intentional for local development, not an error.
const (
	MockAnswer     = "Resposta MOCK: chave não configurada (dev)."
	MockStreamText = "Resposta MOCK (no key): não foi possível acessar serviço externo."
)

// OpenRouter is a client for the OpenRouter completion endpoint.
type OpenRouter struct {
	Client  *Client
	APIURL  string
	Referer string

	apiKey string
}

// NewOpenRouter builds a client with explicit configuration. An empty
// apiKey puts the client in mock mode (HasKey reports false).
func NewOpenRouter(apiURL, apiKey string) *OpenRouter {
	return &OpenRouter{
		Client:  NewClient(),
		APIURL:  apiURL,
		Referer: defaultReferer,
		apiKey:  apiKey,
	}
}

// NewOpenRouterFromEnv builds a client from the environment.
//
// The API key comes from OPENROUTER_API_KEY with a /run/secrets fallback
// for container deployments. An absent key is allowed: HasKey reports
// false and the handlers serve mock replies.
func NewOpenRouterFromEnv() *OpenRouter {
	o := &OpenRouter{
		Client:  NewClient(),
		APIURL:  defaultAPIURL,
		Referer: defaultReferer,
		apiKey:  loadAPIKey(),
	}
	if url := strings.TrimSpace(os.Getenv("OPENROUTER_API_URL")); url != "" {
		o.APIURL = url
	}
	if ref := strings.TrimSpace(os.Getenv("OPENROUTER_REFERER")); ref != "" {
		o.Referer = ref
	}
	return o
}

// loadAPIKey reads the key from the environment, falling back to the
// conventional docker secrets path.
func loadAPIKey() string {
	if key := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); key != "" {
		return key
	}
	if data, err := os.ReadFile("/run/secrets/openrouter_api_key"); err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			slog.Info("openrouter api key loaded from docker secret")
			return key
		}
	}
	return ""
}

// HasKey reports whether an API key is configured.
func (o *OpenRouter) HasKey() bool { return o.apiKey != "" }

// completionPayload is the request body sent to OpenRouter.
type completionPayload struct {
	Model       string              `json:"model"`
	Messages    []datatypes.Message `json:"messages"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream"`
}

// Complete requests a buffered completion. The caller owns the response
// and must close its body; any HTTP status may come back.
func (o *OpenRouter) Complete(ctx context.Context, model string, messages []datatypes.Message) (*http.Response, error) {
	return o.post(ctx, model, messages, false)
}

// OpenStream requests a streaming completion (SSE body).
func (o *OpenRouter) OpenStream(ctx context.Context, model string, messages []datatypes.Message) (*http.Response, error) {
	return o.post(ctx, model, messages, true)
}

func (o *OpenRouter) post(ctx context.Context, model string, messages []datatypes.Message, stream bool) (*http.Response, error) {
	body, err := json.Marshal(completionPayload{
		Model:       model,
		Messages:    messages,
		Temperature: defaultTemperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, err
	}

	return o.Client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.APIURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
		req.Header.Set("HTTP-Referer", o.Referer)
		req.Header.Set("X-Title", appTitle)
		return req, nil
	})
}

// =============================================================================
// Response Extraction
// =============================================================================

// completionBody mirrors the subset of an OpenRouter buffered response
// the relay cares about.
type completionBody struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`
}

// ExtractAssistant pulls the assistant text out of a successful
// completion body.
//
// Lookup order: choices[0].message.content, then choices[0].text, then
// the raw body itself. A present-but-empty content or text field is a
// hit: the model really answered with nothing, and falling through to
// the raw body would echo the whole JSON blob at the user. The second
// return value is the parsed body when it was valid JSON, or the raw
// text re-encoded as a JSON string, so it can be embedded in the relay
// response either way.
func ExtractAssistant(body []byte) (string, json.RawMessage) {
	var raw json.RawMessage
	if json.Valid(body) {
		raw = json.RawMessage(body)
	} else {
		encoded, _ := json.Marshal(string(body))
		raw = json.RawMessage(encoded)
	}

	var parsed completionBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Choices) > 0 {
		if content := parsed.Choices[0].Message.Content; content != nil {
			return *content, raw
		}
		if text := parsed.Choices[0].Text; text != nil {
			return *text, raw
		}
	}

	return string(body), raw
}

// ExtractErrorDetail pulls a human-readable detail out of a non-2xx
// upstream body: error.message when present, then error as a string or
// JSON blob, then the raw text.
func ExtractErrorDetail(body []byte) string {
	var parsed struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Error) == 0 {
		return string(body)
	}

	var withMessage struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(parsed.Error, &withMessage); err == nil && withMessage.Message != "" {
		return withMessage.Message
	}

	var asString string
	if err := json.Unmarshal(parsed.Error, &asString); err == nil {
		return asString
	}

	return string(parsed.Error)
}

// StatusUserMessage returns the localized message for a non-2xx upstream
// status.
func StatusUserMessage(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "Chave de API do OpenRouter inválida ou não configurada."
	case status == http.StatusTooManyRequests:
		return "Limite de requisições excedido. Tente novamente em alguns instantes."
	case status >= 500:
		return "Serviço de IA temporariamente indisponível. Tente novamente mais tarde."
	default:
		return "Erro ao conectar com o serviço de IA."
	}
}
