// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/VerdantAI/AgroRelay/services/relay/datatypes"
	"github.com/VerdantAI/AgroRelay/services/relay/observability"
)

// Contact handles contact form submissions.
//
// POST /api/contact
//
// # Description
//
// Validates the form, emails the submission to the team inbox via
// Resend and sends a best-effort confirmation to the submitter. When
// no Resend key is configured the submission is acknowledged and
// logged instead of sent (dev mode).
func (h *Handler) Contact(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "relay.contact")
	defer span.End()
	defer func() {
		h.Metrics.RecordRequest(observability.EndpointContact, c.Writer.Status())
	}()

	var req datatypes.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Metrics.RecordError(observability.EndpointContact, observability.CodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error:       "validation_error",
			UserMessage: "Nome, email e mensagem são obrigatórios.",
		})
		return
	}

	req.Sanitize()
	if err := req.Validate(); err != nil {
		h.Metrics.RecordError(observability.EndpointContact, observability.CodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error:       "validation_error",
			UserMessage: datatypes.ValidationUserMessage(err),
		})
		return
	}

	if !h.Mailer.HasKey() {
		slog.Warn("resend api key not configured, contact email not sent",
			"name", req.Name,
			"email", req.Email,
			"company", req.Company)
		h.Metrics.RecordContactEmail("dev")
		span.SetStatus(codes.Ok, "dev mode")
		c.JSON(http.StatusOK, datatypes.ContactResponse{
			Success: true,
			Message: "Mensagem recebida (modo desenvolvimento - email não configurado)",
			Dev:     true,
		})
		return
	}

	emailID, err := h.Mailer.SendContactNotification(ctx, req)
	if err != nil {
		slog.Error("contact notification failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification failed")
		h.Metrics.RecordContactEmail("error")
		h.Metrics.RecordError(observability.EndpointContact, observability.CodeInternal)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error:       "internal_error",
			Detail:      err.Error(),
			UserMessage: "Erro ao enviar mensagem. Por favor, tente novamente mais tarde.",
		})
		return
	}
	h.Metrics.RecordContactEmail("sent")

	// Confirmation to the submitter is optional; a failure here never
	// fails the request.
	if err := h.Mailer.SendContactConfirmation(ctx, req); err != nil {
		slog.Warn("contact confirmation failed", "error", err)
	}

	span.SetStatus(codes.Ok, "contact sent")
	c.JSON(http.StatusOK, datatypes.ContactResponse{
		Success: true,
		Message: "Mensagem enviada com sucesso!",
		EmailID: emailID,
	})
}
