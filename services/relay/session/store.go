// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session persists chat exchanges to Weaviate.
//
// Persistence is strictly best-effort: the relay never blocks or fails a
// chat response because a session write failed. When no Weaviate URL is
// configured the service runs in lightweight mode with a no-op store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// saveTimeout bounds a single fire-and-forget write.
const saveTimeout = 5 * time.Second

// Record is one persisted chat exchange.
type Record struct {
	SessionID string
	Question  string
	Answer    string
	Model     string
	CreatedAt time.Time
}

// Store persists chat exchanges.
type Store interface {
	Save(ctx context.Context, rec Record) error
}

// =============================================================================
// No-op Store (lightweight mode)
// =============================================================================

// NoopStore discards all records. Used when WEAVIATE_SERVICE_URL is unset.
type NoopStore struct{}

func (NoopStore) Save(context.Context, Record) error { return nil }

// =============================================================================
// Weaviate Store
// =============================================================================

// WeaviateStore writes records as ChatTurn objects.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore creates a store backed by the given client.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

// Save writes one exchange as a ChatTurn object.
func (s *WeaviateStore) Save(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	properties := map[string]interface{}{
		"session_id": rec.SessionID,
		"question":   rec.Question,
		"answer":     rec.Answer,
		"model":      rec.Model,
		"created_at": createdAt.UnixMilli(),
	}

	_, err := s.client.Data().Creator().
		WithClassName("ChatTurn").
		WithID(uuid.New().String()).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("save chat turn: %w", err)
	}
	return nil
}

// SaveAsync runs Save in a goroutine with its own timeout. This is the
// fire-and-forget path used by the handlers: errors never reach the
// client, they are logged and reported to the outcome callback.
//
// report receives "ok" or "error" once the write finishes; nil is
// allowed when the caller does not track outcomes.
func SaveAsync(store Store, rec Record, report func(outcome string)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		if err := store.Save(ctx, rec); err != nil {
			slog.Warn("session save failed",
				"session_id", rec.SessionID,
				"error", err)
			if report != nil {
				report("error")
			}
			return
		}
		if report != nil {
			report("ok")
		}
	}()
}

// =============================================================================
// Schema
// =============================================================================

// chatTurnSchema returns the ChatTurn class definition.
func chatTurnSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "ChatTurn",
		Description: "A single persisted chat exchange (question and answer).",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "Opaque client session identifier.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "question",
				DataType:     []string{"text"},
				Description:  "The user's last message in the exchange.",
				Tokenization: "word",
			},
			{
				Name:         "answer",
				DataType:     []string{"text"},
				Description:  "The assistant's reply.",
				Tokenization: "word",
			},
			{
				Name:            "model",
				DataType:        []string{"text"},
				Description:     "Resolved model identifier used for the completion.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the exchange completed.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the ChatTurn class if it does not exist yet.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	class := chatTurnSchema()

	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		return nil
	}

	slog.Info("creating weaviate class", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", class.Class, err)
	}
	return nil
}
