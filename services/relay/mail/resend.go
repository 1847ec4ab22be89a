// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mail sends contact form emails through the Resend API.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/VerdantAI/AgroRelay/services/relay/datatypes"
	"github.com/VerdantAI/AgroRelay/services/relay/upstream"
)

const (
	resendAPIURL = "https://api.resend.com/emails"

	defaultContactEmail = "contato@verdantai.com.br"
	defaultFromAddress  = "Verdant Agro Insight <onboarding@resend.dev>"
)

// Resend is a minimal client for the Resend transactional email API.
// An empty API key puts it in dev mode: HasKey reports false and the
// contact handler acknowledges submissions without sending anything.
type Resend struct {
	Client       *upstream.Client
	APIURL       string
	ContactEmail string
	From         string

	apiKey string
}

// NewResend builds a client with explicit configuration. An empty
// apiKey puts it in dev mode.
func NewResend(apiURL, apiKey string) *Resend {
	return &Resend{
		Client:       upstream.NewClient(),
		APIURL:       apiURL,
		ContactEmail: defaultContactEmail,
		From:         defaultFromAddress,
		apiKey:       apiKey,
	}
}

// NewFromEnv builds a client from RESEND_API_KEY (with a /run/secrets
// fallback), CONTACT_EMAIL and RESEND_FROM_EMAIL.
func NewFromEnv() *Resend {
	r := &Resend{
		Client:       upstream.NewClient(),
		APIURL:       resendAPIURL,
		ContactEmail: defaultContactEmail,
		From:         defaultFromAddress,
		apiKey:       loadAPIKey(),
	}
	if addr := strings.TrimSpace(os.Getenv("CONTACT_EMAIL")); addr != "" {
		r.ContactEmail = addr
	}
	if from := strings.TrimSpace(os.Getenv("RESEND_FROM_EMAIL")); from != "" {
		r.From = from
	}
	return r
}

func loadAPIKey() string {
	if key := strings.TrimSpace(os.Getenv("RESEND_API_KEY")); key != "" {
		return key
	}
	if data, err := os.ReadFile("/run/secrets/resend_api_key"); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

// HasKey reports whether an API key is configured.
func (r *Resend) HasKey() bool { return r.apiKey != "" }

type emailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type emailResult struct {
	ID string `json:"id"`
}

// SendContactNotification emails the contact submission to the team
// inbox and returns the Resend email id.
func (r *Resend) SendContactNotification(ctx context.Context, req datatypes.ContactRequest) (string, error) {
	company := req.Company
	if company == "" {
		company = "Empresa não informada"
	}

	return r.send(ctx, emailPayload{
		From:    r.From,
		To:      []string{r.ContactEmail},
		ReplyTo: req.Email,
		Subject: fmt.Sprintf("Novo Contato: %s - %s", req.Name, company),
		HTML:    notificationHTML(req),
	})
}

// SendContactConfirmation emails an acknowledgment to the submitter.
// Failures here are the caller's to ignore; confirmation is optional.
func (r *Resend) SendContactConfirmation(ctx context.Context, req datatypes.ContactRequest) error {
	_, err := r.send(ctx, emailPayload{
		From:    r.From,
		To:      []string{req.Email},
		Subject: "Recebemos sua mensagem - Verdant Agro Insight",
		HTML:    confirmationHTML(req),
	})
	return err
}

func (r *Resend) send(ctx context.Context, payload emailPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := r.Client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.APIURL, strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("resend request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("resend status %d: %s", resp.StatusCode, respBody)
	}

	var result emailResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("resend response: %w", err)
	}
	return result.ID, nil
}

// =============================================================================
// Templates
// =============================================================================

func notificationHTML(req datatypes.ContactRequest) string {
	var b strings.Builder
	b.WriteString("<h2>Nova Solicitação de Contato</h2>")
	b.WriteString("<p><strong>Nome:</strong> " + html.EscapeString(req.Name) + "</p>")
	b.WriteString("<p><strong>Email:</strong> " + html.EscapeString(req.Email) + "</p>")
	if req.Company != "" {
		b.WriteString("<p><strong>Empresa:</strong> " + html.EscapeString(req.Company) + "</p>")
	}
	if req.Phone != "" {
		b.WriteString("<p><strong>Telefone:</strong> " + html.EscapeString(req.Phone) + "</p>")
	}
	b.WriteString("<h3>Mensagem:</h3>")
	b.WriteString("<p style=\"white-space: pre-wrap;\">" + html.EscapeString(req.Message) + "</p>")
	return b.String()
}

func confirmationHTML(req datatypes.ContactRequest) string {
	var b strings.Builder
	b.WriteString("<h2>Obrigado pelo seu contato!</h2>")
	b.WriteString("<p>Olá <strong>" + html.EscapeString(req.Name) + "</strong>,</p>")
	b.WriteString("<p>Recebemos sua mensagem e nossa equipe entrará em contato em breve.</p>")
	b.WriteString("<h3>Sua mensagem:</h3>")
	b.WriteString("<p style=\"white-space: pre-wrap;\">" + html.EscapeString(req.Message) + "</p>")
	return b.String()
}
