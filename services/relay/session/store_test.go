// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

type channelStore struct {
	saved chan Record
	err   error
}

func (s *channelStore) Save(_ context.Context, rec Record) error {
	s.saved <- rec
	return s.err
}

func TestSaveAsyncDeliversRecord(t *testing.T) {
	t.Parallel()

	store := &channelStore{saved: make(chan Record, 1)}
	rec := Record{SessionID: "s1", Question: "q", Answer: "a", Model: "gpt-4o-mini", CreatedAt: time.Now()}

	SaveAsync(store, rec, nil)

	select {
	case got := <-store.saved:
		if got != rec {
			t.Errorf("saved = %+v, want %+v", got, rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("record was not saved")
	}
}

func TestSaveAsyncSwallowsErrors(t *testing.T) {
	t.Parallel()

	// A failing store must not panic or surface anywhere; the write is
	// fire-and-forget.
	store := &channelStore{saved: make(chan Record, 1), err: errors.New("weaviate down")}
	SaveAsync(store, Record{SessionID: "s2"}, nil)

	select {
	case <-store.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("save was never attempted")
	}
}

func TestSaveAsyncReportsOutcome(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "ok"},
		{"failure", errors.New("weaviate down"), "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &channelStore{saved: make(chan Record, 1), err: tc.err}
			outcomes := make(chan string, 1)

			SaveAsync(store, Record{SessionID: "s3"}, func(outcome string) {
				outcomes <- outcome
			})

			select {
			case got := <-outcomes:
				if got != tc.want {
					t.Errorf("outcome = %q, want %q", got, tc.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("outcome was never reported")
			}
		})
	}
}

func TestNoopStore(t *testing.T) {
	t.Parallel()

	if err := (NoopStore{}).Save(context.Background(), Record{}); err != nil {
		t.Errorf("NoopStore.Save: %v", err)
	}
}

func TestChatTurnSchema(t *testing.T) {
	t.Parallel()

	class := chatTurnSchema()
	if class.Class != "ChatTurn" {
		t.Errorf("class = %q", class.Class)
	}
	if class.Vectorizer != "none" {
		t.Errorf("vectorizer = %q", class.Vectorizer)
	}

	want := map[string]string{
		"session_id": "text",
		"question":   "text",
		"answer":     "text",
		"model":      "text",
		"created_at": "number",
	}
	if len(class.Properties) != len(want) {
		t.Fatalf("properties = %d, want %d", len(class.Properties), len(want))
	}
	for _, prop := range class.Properties {
		dataType, ok := want[prop.Name]
		if !ok {
			t.Errorf("unexpected property %q", prop.Name)
			continue
		}
		if len(prop.DataType) != 1 || prop.DataType[0] != dataType {
			t.Errorf("property %q type = %v, want %s", prop.Name, prop.DataType, dataType)
		}
	}
}
