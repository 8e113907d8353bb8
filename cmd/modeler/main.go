// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command modeler starts the ThreatCompass model generation HTTP server.
//
// This is the main entry point for the containerized modeler service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - MODELER_PORT: HTTP server port (default: 12310)
//   - MODELER_PROVIDERS: comma-separated LLM backends - openai, ollama (default: ollama)
//   - MODELER_STORE_PATH: BadgerDB model store directory (default: ./data/models)
//   - MODELER_TEMPLATE_PATH: YAML prompt template library (optional)
//   - MODELER_ENABLE_TRACING: enable the OTLP trace exporter (default: false)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: threatcompass-otel-collector:4317)
//   - MODELER_STREAM_SOFT_TIMEOUT: SSE soft timeout, e.g. "30s" (default: 30s)
//
// # Usage
//
//	# Build
//	go build -o modeler ./cmd/modeler
//
//	# Run
//	./modeler
//
//	# Or via container
//	podman-compose up modeler
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/handlers"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := modeler.Config{
		Port:          getEnvInt("MODELER_PORT", 12310),
		Providers:     splitList(getEnvString("MODELER_PROVIDERS", "ollama")),
		StorePath:     getEnvString("MODELER_STORE_PATH", "./data/models"),
		TemplatePath:  os.Getenv("MODELER_TEMPLATE_PATH"),
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "threatcompass-otel-collector:4317"),
		EnableTracing: getEnvBool("MODELER_ENABLE_TRACING", false),
		EnableMetrics: true,
		Stream: handlers.StreamConfig{
			SoftTimeout: getEnvDuration("MODELER_STREAM_SOFT_TIMEOUT", 0),
		},
	}

	slog.Info("Starting modeler",
		"port", cfg.Port,
		"providers", cfg.Providers,
		"store_path", cfg.StorePath,
	)

	svc, err := modeler.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create modeler: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Modeler error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a
// default. A zero default lets the service apply its own fallback.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
