// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const validContactBody = `{
	"name": "Ana Costa",
	"email": "ana@cooperativa.com.br",
	"company": "Cooperativa Vale Verde",
	"message": "Gostaria de uma demonstração do painel de monitoramento."
}`

func TestContactRejectsInvalidSubmissions(t *testing.T) {
	env := newTestEnv(t, "http://unused", "", "http://unused", "re_test")

	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"invalid json", `{broken`, "Nome, email e mensagem são obrigatórios."},
		{"missing fields", `{}`, "Nome, email e mensagem são obrigatórios."},
		{"bad email", `{"name":"Ana","email":"not-email","message":"mensagem longa o suficiente"}`, "Email inválido."},
		{"short message", `{"name":"Ana","email":"ana@x.com.br","message":"curta"}`, "Mensagem deve ter pelo menos 10 caracteres."},
		{"whitespace name", `{"name":"  A ","email":"ana@x.com.br","message":"mensagem longa o suficiente"}`, "Nome deve ter pelo menos 2 caracteres."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.postJSON("/api/contact", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			code, userMessage := decodeError(t, w)
			if code != "validation_error" {
				t.Errorf("error = %q", code)
			}
			if userMessage != tc.wantMsg {
				t.Errorf("userMessage = %q, want %q", userMessage, tc.wantMsg)
			}
		})
	}
}

func TestContactDevModeWithoutKey(t *testing.T) {
	env := newTestEnv(t, "http://unused", "", "http://unused", "")

	w := env.postJSON("/api/contact", validContactBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Dev     bool   `json:"dev"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || !body.Dev {
		t.Errorf("body = %+v, want success with the dev marker", body)
	}
}

func TestContactSendsNotificationAndConfirmation(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"id":"email-789"}`))
	}))
	defer server.Close()

	env := newTestEnv(t, "http://unused", "", server.URL, "re_test")

	w := env.postJSON("/api/contact", validContactBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		EmailID string `json:"emailId"`
		Dev     bool   `json:"dev"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Dev {
		t.Errorf("body = %+v", body)
	}
	if body.Message != "Mensagem enviada com sucesso!" {
		t.Errorf("message = %q", body.Message)
	}
	if body.EmailID != "email-789" {
		t.Errorf("emailId = %q", body.EmailID)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("resend requests = %d, want notification plus confirmation", got)
	}
}

func TestContactConfirmationFailureDoesNotFailRequest(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Write([]byte(`{"id":"email-1"}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	env := newTestEnv(t, "http://unused", "", server.URL, "re_test")

	w := env.postJSON("/api/contact", validContactBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, confirmation failure must not surface", w.Code)
	}
}

func TestContactNotificationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	env := newTestEnv(t, "http://unused", "", server.URL, "re_test")

	w := env.postJSON("/api/contact", validContactBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	code, userMessage := decodeError(t, w)
	if code != "internal_error" {
		t.Errorf("error = %q", code)
	}
	if userMessage != "Erro ao enviar mensagem. Por favor, tente novamente mais tarde." {
		t.Errorf("userMessage = %q", userMessage)
	}
}
