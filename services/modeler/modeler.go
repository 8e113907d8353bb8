// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package modeler provides the threat-model generation service.
//
// The main Modeler type coordinates all components: HTTP routing, the
// provider clients, the in-flight request registry, the Badger-backed
// model store, prompt templates, and observability infrastructure.
package modeler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreatCompassAI/ThreatCompass/services/llm"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/handlers"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/observability"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/prompts"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/registry"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/routes"
	modelerservices "github.com/ThreatCompassAI/ThreatCompass/services/modeler/services"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/store"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Service defines the contract for the modeler service. Run blocks and
// should only be called once per instance; Router exposes the configured
// engine for integration tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

// Config holds modeler configuration options. Zero values use defaults
// applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// Providers lists the LLM backends to configure.
	// Valid entries: "openai", "ollama". Default: ["ollama"]
	Providers []string

	// StorePath is the directory for the BadgerDB model store.
	// Default: "./data/models"
	StorePath string

	// TemplatePath is an optional YAML prompt template library.
	TemplatePath string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "threatcompass-otel-collector:4317"
	OTelEndpoint string

	// EnableTracing controls whether the OTLP exporter is wired. When
	// false (e.g. local development without a collector) tracing uses
	// the default no-op provider.
	EnableTracing bool

	// EnableMetrics enables the Prometheus /metrics endpoint.
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// Stream holds the SSE delivery timing knobs:
	// poll interval, keepalive interval, soft timeout, registry grace.
	Stream handlers.StreamConfig
}

// service implements Service for production use. All fields are
// read-only after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	providers     map[string]llm.Client
	apiLog        *llm.APIEventLog
	registry      *registry.Registry
	store         store.Store
	coordinator   *modelerservices.Coordinator
	suggester     *modelerservices.Suggester
	tracerCleanup func(context.Context)
}

// New initializes all modeler components: tracing, metrics, the model
// store, provider clients, the prompt library, and the HTTP router.
func New(cfg Config) (Service, error) {
	s := &service{
		config:   applyConfigDefaults(cfg),
		apiLog:   llm.NewAPIEventLog(0),
		registry: registry.New(),
	}

	if s.config.EnableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for generation pipeline")
	}

	st, err := store.Open(store.DefaultConfig(s.config.StorePath))
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open model store: %w", err)
	}
	s.store = st

	if err := s.initProviders(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	templates, err := prompts.LoadLibrary(s.config.TemplatePath)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	s.coordinator = modelerservices.NewCoordinator(
		s.providers, s.registry, s.store, templates, observability.DefaultMetrics)
	s.suggester = modelerservices.NewSuggester(s.store)

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting modeler server", "port", s.config.Port)
	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = []string{llm.FamilyOllama}
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/models"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "threatcompass-otel-collector:4317"
	}
	return cfg
}

// initTracer sets up the OTLP trace exporter. Uses an insecure gRPC
// connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("modeler-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

// initProviders builds one client per configured backend family. At
// least one provider must come up; the rest degrade with a warning.
func (s *service) initProviders() error {
	s.providers = make(map[string]llm.Client, len(s.config.Providers))

	for _, name := range s.config.Providers {
		var (
			client llm.Client
			err    error
		)
		switch name {
		case llm.FamilyOpenAI:
			client, err = llm.NewOpenAIClient(s.apiLog)
		case llm.FamilyOllama:
			client, err = llm.NewOllamaClient(s.apiLog)
		default:
			slog.Warn("Unknown provider in configuration, skipping", "provider", name)
			continue
		}
		if err != nil {
			slog.Warn("Provider unavailable", "provider", name, "error", err)
			continue
		}
		s.providers[name] = client
		slog.Info("Provider configured", "provider", name, "default_model", client.DefaultModel())
	}

	if len(s.providers) == 0 {
		return fmt.Errorf("no usable LLM provider could be configured from %v", s.config.Providers)
	}
	return nil
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("modeler-service"))

	routes.SetupRoutes(s.router, routes.Deps{
		Providers:   s.providers,
		APILog:      s.apiLog,
		Registry:    s.registry,
		Store:       s.store,
		Coordinator: s.coordinator,
		Suggester:   s.suggester,
		Stream:      s.config.Stream,
	})
}

// cleanup releases resources on Run() exit or failed initialization.
func (s *service) cleanup() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Model store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

var _ Service = (*service)(nil)
