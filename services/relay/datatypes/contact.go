// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// contactValidate is the validator instance for contact datatypes.
var contactValidate *validator.Validate

func init() {
	contactValidate = validator.New()
}

// =============================================================================
// Contact Form Types
// =============================================================================

// ContactRequest represents the body accepted by POST /api/contact.
//
// # Description
//
// Name, Email and Message are mandatory; Company and Phone are optional
// context for the sales team. Length rules apply to the trimmed values,
// so Sanitize must run before Validate.
//
// # Validation
//
// Uses go-playground/validator:
//   - Name: required, at least 2 characters after trimming
//   - Email: required, must look like an email address
//   - Message: required, at least 10 characters after trimming
type ContactRequest struct {
	Name    string `json:"name" validate:"required,min=2"`
	Email   string `json:"email" validate:"required,email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Message string `json:"message" validate:"required,min=10"`
}

// ContactResponse is the success body of POST /api/contact.
//
// Dev marks acknowledgments produced without an email provider
// configured (local development); EmailID is the provider's id when a
// notification was actually sent.
type ContactResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	EmailID string `json:"emailId,omitempty"`
	Dev     bool   `json:"dev,omitempty"`
}

// Sanitize trims surrounding whitespace from every field in place.
func (r *ContactRequest) Sanitize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Company = strings.TrimSpace(r.Company)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Message = strings.TrimSpace(r.Message)
}

// Validate validates the ContactRequest fields. Call Sanitize first.
func (r *ContactRequest) Validate() error {
	return contactValidate.Struct(r)
}

// ValidationUserMessage translates a validation error into the localized
// message shown in the contact form UI. Returns a generic message for
// anything it does not recognize.
func ValidationUserMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Nome, email e mensagem são obrigatórios."
	}

	first := verrs[0]
	switch first.Field() {
	case "Name":
		if first.Tag() == "min" {
			return "Nome deve ter pelo menos 2 caracteres."
		}
		return "Nome, email e mensagem são obrigatórios."
	case "Email":
		if first.Tag() == "email" {
			return "Email inválido."
		}
		return "Nome, email e mensagem são obrigatórios."
	case "Message":
		if first.Tag() == "min" {
			return "Mensagem deve ter pelo menos 10 caracteres."
		}
		return "Nome, email e mensagem são obrigatórios."
	default:
		return "Nome, email e mensagem são obrigatórios."
	}
}
