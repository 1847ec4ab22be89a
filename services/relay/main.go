// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/VerdantAI/AgroRelay/services/relay/handlers"
	"github.com/VerdantAI/AgroRelay/services/relay/mail"
	"github.com/VerdantAI/AgroRelay/services/relay/middleware"
	"github.com/VerdantAI/AgroRelay/services/relay/observability"
	"github.com/VerdantAI/AgroRelay/services/relay/routes"
	"github.com/VerdantAI/AgroRelay/services/relay/session"
	"github.com/VerdantAI/AgroRelay/services/relay/upstream"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "relay-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("relay-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newSessionStore connects to Weaviate when a URL is configured, and
// falls back to lightweight mode (no persistence) otherwise.
func newSessionStore() session.Store {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (no session persistence).")
		return session.NoopStore{}
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
			"url", weaviateURL, "error", err)
		return session.NoopStore{}
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return session.NoopStore{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := session.EnsureSchema(ctx, client); err != nil {
		slog.Error("Failed to ensure Weaviate schema. Running in lightweight mode.", "error", err)
		return session.NoopStore{}
	}

	return session.NewWeaviateStore(client)
}

func main() {
	port := os.Getenv("RELAY_PORT")
	if port == "" {
		port = "12300"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()
	sessions := newSessionStore()

	openRouter := upstream.NewOpenRouterFromEnv()
	openRouter.Client.OnAttempts = func(n int) {
		metrics.UpstreamAttempts.Observe(float64(n))
	}
	if !openRouter.HasKey() {
		slog.Warn("OPENROUTER_API_KEY not configured - chat will return mock responses")
	}

	mailer := mail.NewFromEnv()
	if !mailer.HasKey() {
		slog.Warn("RESEND_API_KEY not configured - contact emails will not be sent")
	}

	policy := middleware.NewOriginPolicy(
		os.Getenv("ALLOWED_ORIGINS"),
		os.Getenv("GIN_MODE") == "release")

	h := handlers.NewHandler(openRouter, sessions, mailer, metrics)

	router := gin.Default()
	router.Use(otelgin.Middleware("relay-service"))

	routes.SetupRoutes(router, h, policy, metrics)

	log.Println("Starting the relay server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
