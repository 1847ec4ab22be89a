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

// streamReadSize is the read buffer for the upstream body. Chunk size
// never affects output framing; the decoder carries partial blocks
// across reads.
const streamReadSize = 4096

// keepAliveInterval paces SSE comments during quiet phases so load
// balancers do not cut the connection. Variable so tests can shrink it.
var keepAliveInterval = 15 * time.Second

// ChatStream handles streaming chat completions.
//
// POST /api/ai/stream
//
// # Description
//
// Opens the SSE response first; every failure after that point is an
// error frame on the stream followed by stream end, never an HTTP
// status. The upstream SSE byte stream is re-framed into the relay's
// own format:
//
//	data: {"delta":"..."}\n\n   text fragments
//	event: done\ndata: {}\n\n   exactly once, end of reply
//	event: error\ndata: {...}   terminal failure
//
// Upstream [DONE] markers, heartbeat lines and provider-specific chunk
// shapes are absorbed by the stream decoder. End of upstream input
// without a [DONE] still produces the done frame.
func (h *Handler) ChatStream(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "relay.stream")
	defer span.End()

	streamEnded := h.Metrics.StreamStarted()
	defer streamEnded()
	defer func() {
		h.Metrics.RecordRequest(observability.EndpointStream, c.Writer.Status())
	}()

	// --- Step 1: Open the SSE channel ---
	SetSSEHeaders(c.Writer)
	writer, err := NewEventWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "streaming_unsupported"})
		return
	}

	// Keepalives cover the connect/validation phase and upstream stalls.
	// The handler must not return while the goroutine could still be
	// mid-write, so it waits for the exit ack after signalling done.
	keepAliveDone := make(chan struct{})
	keepAliveExited := make(chan struct{})
	defer func() {
		close(keepAliveDone)
		<-keepAliveExited
	}()
	go func() {
		defer close(keepAliveExited)
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			case <-keepAliveDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	fail := func(code string, resp datatypes.ErrorResponse) {
		h.Metrics.RecordError(observability.EndpointStream, code)
		span.SetStatus(codes.Error, resp.Error)
		_ = writer.WriteError(resp)
	}

	// --- Step 2: Bind and validate ---
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(observability.CodeValidation, datatypes.ErrorResponse{
			Error:       "messages array required",
			UserMessage: "Formato de mensagens inválido",
		})
		return
	}

	count, isArray := datatypes.CountMessages(req.Messages)
	switch {
	case !isArray:
		fail(observability.CodeValidation, datatypes.ErrorResponse{
			Error:       "messages array required",
			UserMessage: "Formato de mensagens inválido",
		})
		return
	case count == 0:
		fail(observability.CodeValidation, datatypes.ErrorResponse{
			Error:       "messages array cannot be empty",
			UserMessage: "Array de mensagens não pode estar vazio",
		})
		return
	case count > datatypes.MaxMessagesPerRequest:
		fail(observability.CodeValidation, datatypes.ErrorResponse{
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

	messages := datatypes.NormalizeMessages(req.Messages)
	if len(messages) == 0 {
		fail(observability.CodeValidation, datatypes.ErrorResponse{
			Error:       "no_valid_messages",
			UserMessage: "Nenhuma mensagem válida encontrada",
		})
		return
	}

	// --- Step 3: Mock mode ---
	if !h.OpenRouter.HasKey() {
		slog.Warn("openrouter api key not configured, streaming mock response")
		_ = writer.WriteDelta(upstream.MockStreamText)
		if req.SessionID != "" {
			session.SaveAsync(h.Sessions, session.Record{
				SessionID: req.SessionID,
				Question:  lastUserContent(messages),
				Answer:    upstream.MockStreamText,
				Model:     model,
				CreatedAt: time.Now(),
			}, h.Metrics.RecordSessionWrite)
		}
		_ = writer.WriteDone()
		span.SetStatus(codes.Ok, "mock stream")
		return
	}

	// --- Step 4: Open the upstream stream ---
	resp, err := h.OpenRouter.OpenStream(ctx, model, messages)
	if err != nil {
		var netErr *upstream.NetworkError
		if errors.As(err, &netErr) {
			slog.Error("upstream stream open failed",
				"attempts", netErr.Attempts,
				"kind", string(netErr.Kind),
				"error", netErr.Err)
			span.RecordError(err)
			fail(observability.CodeFetchFailed, datatypes.ErrorResponse{
				Error:       "fetch_failed",
				Code:        string(netErr.Kind),
				Detail:      netErr.Error(),
				UserMessage: netErr.UserMessage(),
			})
			return
		}
		h.Metrics.ClientDisconnects.Inc()
		span.SetStatus(codes.Error, "request aborted")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		detail := upstream.ExtractErrorDetail(body)
		slog.Warn("upstream returned error status",
			"status", resp.StatusCode,
			"detail", detail)
		fail(observability.CodeUpstreamError, datatypes.ErrorResponse{
			Error:       "upstream_error",
			Detail:      detail,
			UserMessage: upstream.StatusUserMessage(resp.StatusCode),
		})
		return
	}

	// --- Step 5: Relay the stream ---
	decoder := upstream.NewStreamDecoder()
	buf := make([]byte, streamReadSize)
	start := time.Now()
	firstToken := false

	emit := func(events []upstream.Event) {
		for _, ev := range events {
			switch ev.Type {
			case upstream.EventDelta:
				if !firstToken {
					firstToken = true
					h.Metrics.RecordFirstToken(time.Since(start))
				}
				h.Metrics.DeltasTotal.Inc()
				_ = writer.WriteDelta(ev.Text)
			case upstream.EventDone:
				_ = writer.WriteDone()
			}
		}
	}

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			events, decErr := decoder.Feed(buf[:n])
			emit(events)
			if decErr != nil {
				slog.Error("stream decode failed", "error", decErr)
				fail(observability.CodeBufferLimit, datatypes.ErrorResponse{
					Error:       "buffer_overflow",
					Detail:      decErr.Error(),
					UserMessage: "Resposta do serviço de IA excedeu o limite. Tente novamente.",
				})
				return
			}
			if decoder.Done() {
				span.SetStatus(codes.Ok, "stream relayed")
				return
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				emit(decoder.Finish())
				span.SetStatus(codes.Ok, "stream relayed")
				return
			}
			if ctx.Err() != nil {
				h.Metrics.ClientDisconnects.Inc()
				span.SetStatus(codes.Error, "client disconnected")
				return
			}
			slog.Error("upstream read failed", "error", readErr)
			span.RecordError(readErr)
			fail(observability.CodeStreamRead, datatypes.ErrorResponse{
				Error:       "stream_read_failed",
				Detail:      readErr.Error(),
				UserMessage: "Erro ao processar o stream. Tente novamente.",
			})
			return
		}
	}
}
