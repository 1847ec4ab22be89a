// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/VerdantAI/AgroRelay/pkg/ux"
)

// newRelayClient builds the API client shared by both commands. On a
// TTY the stream deltas are echoed as they arrive; piped output only
// gets the final answer.
func newRelayClient() (*ux.Client, bool) {
	interactive := isatty.IsTerminal(os.Stdout.Fd())

	client := ux.NewClient(relayURL)
	client.Model = modelName
	client.Processor = ux.NewStreamProcessorWithWriter(os.Stdout, interactive)
	return client, interactive
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	client, interactive := newRelayClient()

	var spinner *ux.Spinner
	if interactive {
		spinner = ux.NewSpinner(os.Stdout, "Consultando o serviço de IA...")
		spinner.Start()
	}

	answer, err := client.Ask(context.Background(),
		[]ux.Turn{{Role: "user", Content: question}},
		sessionID, saveFlag)

	if spinner != nil {
		spinner.Stop()
	}

	if err != nil {
		var serverErr *ux.ServerError
		if errors.As(err, &serverErr) {
			log.Fatalf("Error: %s (%s)", serverErr.Error(), serverErr.Code)
		}
		log.Fatalf("Error: %v", err)
	}

	fmt.Println(answer)
}

func runChatCommand(cmd *cobra.Command, args []string) {
	client, interactive := newRelayClient()

	session := sessionID
	if session == "" {
		session = uuid.New().String()
	}

	// Graceful shutdown on Ctrl+C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if interactive {
		fmt.Printf("Chat session %s (type 'exit' to quit)\n\n", session)
	}

	var turns []ux.Turn
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if ctx.Err() != nil {
			return
		}

		fmt.Print("You: ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}

		turns = append(turns, ux.Turn{Role: "user", Content: input})

		fmt.Print("Assistant: ")
		answer, err := client.Exchange(ctx, turns, session, saveFlag)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Keep the session going after a failed exchange.
			turns = turns[:len(turns)-1]
			fmt.Printf("\nError: %v\n", err)
			continue
		}

		if !interactive {
			fmt.Println(answer)
		}
		fmt.Println()

		turns = append(turns, ux.Turn{Role: "assistant", Content: answer})
	}
}
