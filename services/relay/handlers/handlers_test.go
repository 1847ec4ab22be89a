// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/VerdantAI/AgroRelay/services/relay/mail"
	"github.com/VerdantAI/AgroRelay/services/relay/observability"
	"github.com/VerdantAI/AgroRelay/services/relay/session"
	"github.com/VerdantAI/AgroRelay/services/relay/upstream"
)

// recordingStore captures session writes so tests can observe the
// fire-and-forget persistence path.
type recordingStore struct {
	saved chan session.Record
}

func newRecordingStore() *recordingStore {
	return &recordingStore{saved: make(chan session.Record, 8)}
}

func (s *recordingStore) Save(_ context.Context, rec session.Record) error {
	s.saved <- rec
	return nil
}

// waitForSave blocks until an async save lands or the test times out.
func (s *recordingStore) waitForSave(t *testing.T) session.Record {
	t.Helper()
	select {
	case rec := <-s.saved:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("session save did not happen")
		return session.Record{}
	}
}

// testEnv wires a Handler against a fake upstream and a fake mail API.
type testEnv struct {
	handler *Handler
	store   *recordingStore
	router  *gin.Engine
}

// newTestEnv builds the handler stack. Empty openRouterKey or resendKey
// selects the respective degraded mode, like the real service.
func newTestEnv(t *testing.T, upstreamURL, openRouterKey, mailURL, resendKey string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	or := upstream.NewOpenRouter(upstreamURL, openRouterKey)
	or.Client.RetryBackoff = time.Millisecond
	or.Client.AttemptTimeout = 5 * time.Second

	mailer := mail.NewResend(mailURL, resendKey)
	mailer.Client.RetryBackoff = time.Millisecond

	store := newRecordingStore()
	h := NewHandler(or, store, mailer, observability.InitMetrics())

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	router.POST("/api/ai/chat", h.Chat)
	router.POST("/api/ai/stream", h.ChatStream)
	router.POST("/api/contact", h.Contact)

	return &testEnv{handler: h, store: store, router: router}
}

// postJSON performs a request against the test router with a raw JSON body.
func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(w, req)
	return w
}

// decodeError unmarshals an API error body.
func decodeError(t *testing.T, w *httptest.ResponseRecorder) (code, userMessage string) {
	t.Helper()
	var body struct {
		Error       string `json:"error"`
		UserMessage string `json:"userMessage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body.Error, body.UserMessage
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, "http://unused", "", "http://unused", "")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "relay" {
		t.Errorf("body = %v", body)
	}
}
