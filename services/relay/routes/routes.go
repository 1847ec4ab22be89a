// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VerdantAI/AgroRelay/services/relay/handlers"
	"github.com/VerdantAI/AgroRelay/services/relay/middleware"
	"github.com/VerdantAI/AgroRelay/services/relay/observability"
)

// SetupRoutes wires the API onto the router.
//
// Middleware order is explicit: CORS runs first so even rate-limited
// responses carry the right headers, then the per-endpoint limiter,
// then the handler. The streaming endpoint uses the SSE variant of the
// limiter because its contract forbids JSON error statuses.
func SetupRoutes(router *gin.Engine, h *handlers.Handler, policy middleware.OriginPolicy, metrics *observability.Metrics) {
	chatLimiter := middleware.NewWindowLimiter(middleware.RateLimitWindow, middleware.ChatRateLimit)
	contactLimiter := middleware.NewWindowLimiter(middleware.RateLimitWindow, middleware.ContactRateLimit)

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", middleware.CORS(policy))
	{
		ai := api.Group("/ai")
		{
			ai.POST("/chat",
				middleware.RateLimit(chatLimiter, metrics, observability.EndpointChat),
				h.Chat)
			ai.POST("/stream",
				middleware.RateLimitSSE(chatLimiter, metrics, observability.EndpointStream),
				h.ChatStream)
		}

		api.POST("/contact",
			middleware.RateLimit(contactLimiter, metrics, observability.EndpointContact),
			h.Contact)
	}
}
