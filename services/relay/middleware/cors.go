// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginPolicy decides which browser origins may call the API.
//
// The decision function is pure so it can be tested without HTTP
// plumbing. Rules:
//   - an empty Origin header is allowed (same-origin and non-browser
//     clients send none)
//   - "*" in the allow-list admits everything
//   - otherwise the origin must match the allow-list exactly
//   - outside production, localhost origins are admitted regardless
type OriginPolicy struct {
	Allowed    []string
	Production bool
}

// NewOriginPolicy parses a comma-separated allow-list, trimming blanks.
func NewOriginPolicy(allowedOrigins string, production bool) OriginPolicy {
	var allowed []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	return OriginPolicy{Allowed: allowed, Production: production}
}

// Allows reports whether the given Origin header value is acceptable.
func (p OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return true
	}

	for _, allowed := range p.Allowed {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	if !p.Production && isLocalhost(origin) {
		return true
	}
	return false
}

func isLocalhost(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") ||
		origin == "http://localhost" ||
		strings.HasPrefix(origin, "http://127.0.0.1:") ||
		origin == "http://127.0.0.1"
}

// CORS applies the origin policy and answers preflight requests.
// Disallowed origins get a 403 and no CORS headers.
func CORS(policy OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if !policy.Allows(origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin_not_allowed"})
			return
		}

		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
