// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/VerdantAI/AgroRelay/services/relay/datatypes"
	"github.com/VerdantAI/AgroRelay/services/relay/observability"
	"github.com/VerdantAI/AgroRelay/services/relay/session"
	"github.com/VerdantAI/AgroRelay/services/relay/upstream"
)

// maxUpstreamBody caps how much of a buffered upstream response is read.
const maxUpstreamBody = 4 * 1024 * 1024

// Chat handles buffered chat completions.
//
// POST /api/ai/chat
//
// # Description
//
// Validates and normalizes the request, relays it to OpenRouter and
// returns the extracted assistant text together with the raw upstream
// body. Without an API key it answers with a mock reply instead of
// failing, so the frontend keeps working in local development.
//
// Responses:
//   - 200 {assistant, raw} on success (or mock)
//   - 400 on validation failures
//   - 502 fetch_failed when every transport attempt failed
//   - upstream status passthrough with openrouter_error for non-2xx
func (h *Handler) Chat(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "relay.chat")
	defer span.End()
	defer func() {
		h.Metrics.RecordRequest(observability.EndpointChat, c.Writer.Status())
	}()

	// --- Step 1: Bind and validate ---
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Metrics.RecordError(observability.EndpointChat, observability.CodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "messages (array) required"})
		return
	}

	count, isArray := datatypes.CountMessages(req.Messages)
	if !isArray {
		h.Metrics.RecordError(observability.EndpointChat, observability.CodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "messages (array) required"})
		return
	}
	if count == 0 {
		h.Metrics.RecordError(observability.EndpointChat, observability.CodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "messages array cannot be empty"})
		return
	}
	if count > datatypes.MaxMessagesPerRequest {
		h.Metrics.RecordError(observability.EndpointChat, observability.CodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error:       "too_many_messages",
			UserMessage: "Número máximo de mensagens excedido (50)",
		})
		return
	}

	model := datatypes.ResolveModel(req.Model)
	span.SetAttributes(
		attribute.String("chat.model", model),
		attribute.Int("chat.messages", count),
	)

	// --- Step 2: Normalize ---
	messages := datatypes.NormalizeMessages(req.Messages)
	if len(messages) == 0 {
		h.Metrics.RecordError(observability.EndpointChat, observability.CodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error:       "no_valid_messages",
			UserMessage: "Nenhuma mensagem válida encontrada",
		})
		return
	}

	// --- Step 3: Mock mode ---
	if !h.OpenRouter.HasKey() {
		slog.Warn("openrouter api key not configured, returning mock response")
		h.saveExchange(req, messages, upstream.MockAnswer, model)
		span.SetStatus(codes.Ok, "mock response")
		c.JSON(http.StatusOK, datatypes.ChatResponse{Assistant: upstream.MockAnswer})
		return
	}

	// --- Step 4: Upstream call ---
	resp, err := h.OpenRouter.Complete(ctx, model, messages)
	if err != nil {
		var netErr *upstream.NetworkError
		if errors.As(err, &netErr) {
			slog.Error("upstream fetch failed",
				"attempts", netErr.Attempts,
				"kind", string(netErr.Kind),
				"error", netErr.Err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			h.Metrics.RecordError(observability.EndpointChat, observability.CodeFetchFailed)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{
				Error:       "fetch_failed",
				Code:        string(netErr.Kind),
				Detail:      netErr.Error(),
				UserMessage: netErr.UserMessage(),
			})
			return
		}
		// Client went away; nothing left to answer.
		span.SetStatus(codes.Error, "request aborted")
		return
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if readErr != nil {
		span.RecordError(readErr)
		span.SetStatus(codes.Error, "body read failed")
		h.Metrics.RecordError(observability.EndpointChat, observability.CodeInternal)
		c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{
			Error:       "fetch_failed",
			Detail:      readErr.Error(),
			UserMessage: "Erro de conexão com o serviço de IA. Verifique sua conexão com a internet.",
		})
		return
	}

	// --- Step 5: Upstream status passthrough ---
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := upstream.ExtractErrorDetail(body)
		slog.Warn("upstream returned error status",
			"status", resp.StatusCode,
			"detail", detail)
		span.SetStatus(codes.Error, "upstream error status")
		h.Metrics.RecordError(observability.EndpointChat, observability.CodeUpstreamError)
		c.JSON(resp.StatusCode, datatypes.ErrorResponse{
			Error:       "openrouter_error",
			Detail:      detail,
			UserMessage: upstream.StatusUserMessage(resp.StatusCode),
		})
		return
	}

	// --- Step 6: Extract and reply ---
	assistant, raw := upstream.ExtractAssistant(body)
	h.saveExchange(req, messages, assistant, model)

	span.SetStatus(codes.Ok, "completion relayed")
	c.JSON(http.StatusOK, datatypes.ChatResponse{Assistant: assistant, Raw: raw})
}

// saveExchange persists the exchange fire-and-forget when the client
// asked for it. Failures are logged inside the store, never surfaced.
func (h *Handler) saveExchange(req datatypes.ChatRequest, messages []datatypes.Message, answer, model string) {
	if !req.Save || req.SessionID == "" {
		return
	}
	session.SaveAsync(h.Sessions, session.Record{
		SessionID: req.SessionID,
		Question:  lastUserContent(messages),
		Answer:    answer,
		Model:     model,
		CreatedAt: time.Now(),
	}, h.Metrics.RecordSessionWrite)
}

// lastUserContent returns the content of the most recent user turn,
// falling back to the last message of any role.
func lastUserContent(messages []datatypes.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == datatypes.RoleUser {
			return messages[i].Content
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content
	}
	return ""
}
