// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the relay API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/VerdantAI/AgroRelay/services/relay/mail"
	"github.com/VerdantAI/AgroRelay/services/relay/observability"
	"github.com/VerdantAI/AgroRelay/services/relay/session"
	"github.com/VerdantAI/AgroRelay/services/relay/upstream"
)

// tracer is the shared tracer for all relay handlers.
var tracer = otel.Tracer("relay-handlers")

// Handler bundles the dependencies shared by the API handlers.
//
// # Fields
//
//   - OpenRouter: Upstream completion client. Never nil; runs in mock
//     mode when no API key is configured.
//   - Sessions: Chat persistence. A NoopStore in lightweight mode.
//   - Mailer: Contact form email client. Dev mode without an API key.
//   - Metrics: Shared Prometheus instruments.
type Handler struct {
	OpenRouter *upstream.OpenRouter
	Sessions   session.Store
	Mailer     *mail.Resend
	Metrics    *observability.Metrics
}

// NewHandler creates a Handler with the given dependencies.
func NewHandler(or *upstream.OpenRouter, sessions session.Store, mailer *mail.Resend, metrics *observability.Metrics) *Handler {
	return &Handler{
		OpenRouter: or,
		Sessions:   sessions,
		Mailer:     mailer,
		Metrics:    metrics,
	}
}

// HealthCheck reports service liveness.
//
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "relay",
	})
}
