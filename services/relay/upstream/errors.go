// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorKind classifies a transport failure for user-facing translation.
type ErrorKind string

const (
	KindConnRefused ErrorKind = "ECONNREFUSED"
	KindDNS         ErrorKind = "ENOTFOUND"
	KindTimeout     ErrorKind = "ETIMEDOUT"
	KindNetwork     ErrorKind = "ENETWORK"
)

// UserMessage returns the localized message for this failure class.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindConnRefused:
		return "Não foi possível conectar ao servidor da API."
	case KindDNS:
		return "Não foi possível resolver o endereço do servidor."
	case KindTimeout:
		return "Tempo de espera esgotado. Tente novamente."
	default:
		return "Erro de conexão com o serviço de IA. Verifique sua conexão com a internet."
	}
}

// NetworkError is returned when every attempt of a request failed at the
// transport level. It carries the last underlying error, the number of
// attempts made and a coarse classification.
type NetworkError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to fetch after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UserMessage returns the localized message for this error.
func (e *NetworkError) UserMessage() string { return e.Kind.UserMessage() }

// classify maps a transport error onto an ErrorKind.
func classify(err error) ErrorKind {
	if err == nil {
		return KindNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnRefused
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindNetwork
}
