// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides the gin middleware stack for the relay:
// rate limiting and CORS.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/VerdantAI/AgroRelay/services/relay/datatypes"
	"github.com/VerdantAI/AgroRelay/services/relay/observability"
)

// RateLimitWindow is the lookback window for request counting.
const RateLimitWindow = 60 * time.Second

// Per-endpoint budgets within one window.
const (
	ChatRateLimit    = 30
	ContactRateLimit = 10
)

// rateLimitUserMessage is shown whenever a budget is exhausted.
const rateLimitUserMessage = "Muitas requisições. Por favor, aguarde um momento antes de tentar novamente."

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(key string) bool
}

// =============================================================================
// Fixed-Window Limiter
// =============================================================================

// WindowLimiter is an in-process Limiter that admits at most maxRequests
// per key whose timestamps fall inside the lookback window.
//
// Timestamps are kept per key and filtered on every call, so a request
// arriving just after the oldest one leaves the window is admitted
// again. State lives in process memory only; a restart resets all
// counters, which is acceptable for this service's abuse-mitigation
// purpose.
type WindowLimiter struct {
	window      time.Duration
	maxRequests int

	mu      sync.Mutex
	history map[string][]time.Time

	// now is replaced in tests.
	now func() time.Time
}

// NewWindowLimiter creates a limiter admitting maxRequests per window.
func NewWindowLimiter(window time.Duration, maxRequests int) *WindowLimiter {
	return &WindowLimiter{
		window:      window,
		maxRequests: maxRequests,
		history:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records the request and reports whether it fits the budget.
// Rejected requests are not recorded.
func (l *WindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.history[key][:0:0]
	for _, ts := range l.history[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.maxRequests {
		l.history[key] = recent
		return false
	}

	l.history[key] = append(recent, now)
	return true
}

// =============================================================================
// Gin Middleware
// =============================================================================

// ClientKey resolves the rate-limit key for a request: first hop of
// X-Forwarded-For, then X-Real-IP, then the socket address, then a
// shared "unknown" bucket.
func ClientKey(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(c.GetHeader("X-Real-IP")); real != "" {
		return real
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// RateLimit rejects over-budget requests with a JSON 429.
func RateLimit(limiter Limiter, metrics *observability.Metrics, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(ClientKey(c)) {
			metrics.RecordRateLimited(endpoint)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error:       "rate_limit_exceeded",
				UserMessage: rateLimitUserMessage,
			})
			return
		}
		c.Next()
	}
}

// RateLimitSSE rejects over-budget requests with an SSE error frame on
// an already-opened event stream, because the streaming endpoint never
// answers with a JSON status once headers are out.
func RateLimitSSE(limiter Limiter, metrics *observability.Metrics, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(ClientKey(c)) {
			metrics.RecordRateLimited(endpoint)

			c.Header("Content-Type", "text/event-stream; charset=utf-8")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.String(http.StatusOK,
				"event: error\ndata: {\"error\":\"rate_limit_exceeded\",\"userMessage\":\"Muitas requisições. Aguarde um momento.\"}\n\n")
			c.Abort()
			return
		}
		c.Next()
	}
}
