// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VerdantAI/AgroRelay/services/relay/datatypes"
)

func TestOpenRouterRequestShape(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	var gotBody completionPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewOpenRouter(server.URL, "sk-test")
	messages := []datatypes.Message{{Role: "user", Content: "Qual o melhor solo para soja?"}}

	resp, err := client.Complete(context.Background(), "gpt-4o-mini", messages)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	resp.Body.Close()

	if auth := gotHeaders.Get("Authorization"); auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if ref := gotHeaders.Get("HTTP-Referer"); ref == "" {
		t.Error("HTTP-Referer header missing")
	}
	if title := gotHeaders.Get("X-Title"); title != "Verdant Agro Insight" {
		t.Errorf("X-Title = %q", title)
	}

	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotBody.Model)
	}
	if gotBody.Temperature != 0.2 {
		t.Errorf("temperature = %v", gotBody.Temperature)
	}
	if gotBody.Stream {
		t.Error("buffered request must not set stream")
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != messages[0].Content {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}

func TestOpenRouterStreamFlag(t *testing.T) {
	t.Parallel()

	var gotBody completionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewOpenRouter(server.URL, "sk-test")
	resp, err := client.OpenStream(context.Background(), "gpt-4o", nil)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	resp.Body.Close()

	if !gotBody.Stream {
		t.Error("streaming request must set stream")
	}
}

func TestHasKey(t *testing.T) {
	t.Parallel()

	if !NewOpenRouter("http://x", "key").HasKey() {
		t.Error("HasKey with key = false")
	}
	if NewOpenRouter("http://x", "").HasKey() {
		t.Error("HasKey without key = true")
	}
}

func TestExtractAssistant(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"message content", `{"choices":[{"message":{"content":"resposta"}}]}`, "resposta"},
		{"text fallback", `{"choices":[{"text":"legacy"}]}`, "legacy"},
		{"content wins over text", `{"choices":[{"message":{"content":"a"},"text":"b"}]}`, "a"},
		{"empty content is an answer", `{"choices":[{"message":{"content":""}}]}`, ""},
		{"empty content shadows text", `{"choices":[{"message":{"content":""},"text":"b"}]}`, ""},
		{"no choices", `{"id":"gen-1"}`, `{"id":"gen-1"}`},
		{"not json", `plain body`, "plain body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, raw := ExtractAssistant([]byte(tc.body))
			if got != tc.want {
				t.Errorf("assistant = %q, want %q", got, tc.want)
			}
			if !json.Valid(raw) {
				t.Errorf("raw %q is not valid JSON", raw)
			}
		})
	}
}

func TestExtractErrorDetail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"error message", `{"error":{"message":"invalid model"}}`, "invalid model"},
		{"error string", `{"error":"quota exceeded"}`, "quota exceeded"},
		{"error object no message", `{"error":{"code":429}}`, `{"code":429}`},
		{"no error field", `{"status":"bad"}`, `{"status":"bad"}`},
		{"not json", `<html>502</html>`, `<html>502</html>`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractErrorDetail([]byte(tc.body)); got != tc.want {
				t.Errorf("detail = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStatusUserMessage(t *testing.T) {
	t.Parallel()

	if got := StatusUserMessage(401); got != "Chave de API do OpenRouter inválida ou não configurada." {
		t.Errorf("401: %q", got)
	}
	if got := StatusUserMessage(429); got != "Limite de requisições excedido. Tente novamente em alguns instantes." {
		t.Errorf("429: %q", got)
	}
	if got := StatusUserMessage(503); got != "Serviço de IA temporariamente indisponível. Tente novamente mais tarde." {
		t.Errorf("503: %q", got)
	}
	if got := StatusUserMessage(404); got != "Erro ao conectar com o serviço de IA." {
		t.Errorf("404: %q", got)
	}
}
