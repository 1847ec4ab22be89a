// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The relay command is a terminal client for a running relay service:
// a one-shot question mode and an interactive chat loop.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	relayURL  string
	modelName string
	sessionID string
	saveFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Terminal client for the Verdant Agro Insight relay",
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	Run:   runAskCommand,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat session with streamed answers",
	Run:   runChatCommand,
}

func init() {
	defaultURL := os.Getenv("RELAY_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:12300"
	}

	rootCmd.PersistentFlags().StringVar(&relayURL, "url", defaultURL, "Base URL of the relay service")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "Model identifier (must be on the relay's allow-list)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "Session id to attach exchanges to")
	rootCmd.PersistentFlags().BoolVar(&saveFlag, "save", false, "Persist exchanges on the server")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
