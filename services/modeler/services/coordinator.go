// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services contains the generation coordinator and the
// similarity/suggestion service.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreatCompassAI/ThreatCompass/services/llm"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/observability"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/prompts"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/registry"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var coordinatorTracer = otel.Tracer("threatcompass.modeler.coordinator")

const (
	// defaultMaxTokens bounds the completion the provider may generate.
	defaultMaxTokens = 4096

	// providerCallTimeout bounds a single provider round trip.
	providerCallTimeout = 5 * time.Minute

	// orphanRetention is how long a completed registry entry survives
	// when no stream connection ever opened for it. The stream
	// publisher removes entries it served; this covers fire-and-forget
	// submissions.
	orphanRetention = 5 * time.Minute
)

// Coordinator orchestrates one generation per submission: prompt
// resolution, provider/model selection, the provider call, persistence,
// and progress events into the request registry.
//
// Submit returns immediately; the generation runs as a goroutine and
// always runs to completion or failure regardless of whether any stream
// connection is opened or stays open. Exactly one of a response or an
// error event reaches the registry per request id, always last.
type Coordinator struct {
	providers map[string]llm.Client
	registry  *registry.Registry
	store     store.Store
	templates *prompts.Library
	metrics   *observability.GenerationMetrics
	maxTokens int
}

// NewCoordinator wires the coordinator's collaborators. providers is
// keyed by family name (llm.FamilyOpenAI, llm.FamilyOllama); metrics may
// be nil.
func NewCoordinator(providers map[string]llm.Client, reg *registry.Registry,
	st store.Store, templates *prompts.Library,
	metrics *observability.GenerationMetrics) *Coordinator {

	return &Coordinator{
		providers: providers,
		registry:  reg,
		store:     st,
		templates: templates,
		metrics:   metrics,
		maxTokens: defaultMaxTokens,
	}
}

// Submit registers a new generation and starts it in the background.
// The returned request id correlates the submission with its stream
// connection.
func (c *Coordinator) Submit(req datatypes.GenerateModelRequest) (string, error) {
	client, ok := c.providers[req.Provider]
	if !ok {
		return "", fmt.Errorf("provider %q is not configured", req.Provider)
	}

	id := uuid.New().String()
	c.registry.Create(id)
	slog.Info("Generation submitted", "request_id", id, "provider", req.Provider)

	go func() {
		// The generation owns its own context: closing the stream
		// connection must never cancel an in-flight provider call.
		c.run(context.Background(), id, client, req)
		c.scheduleOrphanCleanup(id)
	}()
	return id, nil
}

// GenerateSync runs a generation to completion on the caller's
// goroutine. Used by the simplified synchronous submission mode.
func (c *Coordinator) GenerateSync(ctx context.Context,
	req datatypes.GenerateModelRequest) (datatypes.SyncGenerateResponse, error) {

	client, ok := c.providers[req.Provider]
	if !ok {
		return datatypes.SyncGenerateResponse{}, fmt.Errorf("provider %q is not configured", req.Provider)
	}

	id := uuid.New().String()
	c.registry.Create(id)
	defer c.registry.Remove(id)

	out := c.run(ctx, id, client, req)
	if out.perr != nil {
		return datatypes.SyncGenerateResponse{}, out.perr
	}
	return datatypes.SyncGenerateResponse{
		SubjectID:      out.subjectID,
		Response:       out.text,
		Tokens:         out.usage,
		ProcessingTime: out.elapsed.Seconds(),
	}, nil
}

// outcome carries the terminal result of one generation run.
type outcome struct {
	subjectID string
	text      string
	usage     datatypes.TokenUsage
	elapsed   time.Duration
	perr      *llm.ProviderError
}

// run executes the generation steps, emitting a progress event for each
// and exactly one terminal event at the end.
func (c *Coordinator) run(ctx context.Context, id string, client llm.Client,
	req datatypes.GenerateModelRequest) outcome {

	ctx, span := coordinatorTracer.Start(ctx, "Coordinator.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("generation.request_id", id),
		attribute.String("generation.provider", client.Name()),
	)

	started := time.Now()

	// Step 1: resolve the prompt template.
	tpl, err := c.templates.Resolve(req.PromptTemplateID)
	if err != nil {
		perr := &llm.ProviderError{
			Kind:    llm.ErrPromptNotFound,
			Message: fmt.Sprintf("prompt template %q does not resolve", req.PromptTemplateID),
		}
		return c.fail(span, id, client.Name(), started, perr)
	}

	// Step 2: substitute the subject and let the caller audit exactly
	// what will be sent.
	prompt := prompts.Substitute(tpl, req.SubjectText)
	c.push(id, registry.EventPrompt, map[string]any{
		"prompt":     prompt,
		"request_id": id,
	})

	// Step 3: resolve the effective model. A model name that clearly
	// belongs to the other backend family would be a guaranteed-invalid
	// request, so fall back to the provider's own default and say so.
	model := req.Model
	if family := llm.DetectFamily(model); model != "" && family != "" && family != client.Name() {
		slog.Warn("Requested model belongs to a different provider family, using default",
			"request_id", id, "requested", model, "provider", client.Name())
		c.push(id, registry.EventWarning, map[string]any{
			"message":    fmt.Sprintf("model %q looks like a %s model; using %s default %q", model, family, client.Name(), client.DefaultModel()),
			"request_id": id,
		})
		model = client.DefaultModel()
	}
	if model == "" {
		model = client.DefaultModel()
	}

	// Step 4: call the provider.
	c.push(id, registry.EventProcessing, map[string]any{
		"status":     "generating threat model",
		"model":      model,
		"request_id": id,
	})

	callCtx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()
	callStart := time.Now()
	resp, err := client.Complete(callCtx, prompt, model, c.maxTokens)
	c.metrics.RecordProviderCall(client.Name(), time.Since(callStart))
	if err != nil {
		perr, ok := llm.AsProviderError(err)
		if !ok {
			perr = llm.ClassifyTransportError(client.Name(), err)
		}
		return c.fail(span, id, client.Name(), started, perr)
	}

	elapsed := time.Since(started)

	// Step 5: persist the result. Persistence must not depend on any
	// stream being read, and a storage fault does not discard a
	// completed generation: the text still reaches the caller.
	subjectID := uuid.New().String()
	result := datatypes.ModelResult{
		SubjectID:   subjectID,
		Title:       resultTitle(req),
		ModelUsed:   model,
		Provider:    client.Name(),
		RawText:     resp.Text,
		SubjectText: req.SubjectText,
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.store.SaveResult(ctx, result); err != nil {
		slog.Error("Failed to persist generation result",
			"request_id", id, "subject_id", subjectID, "error", err)
		span.RecordError(err)
		c.push(id, registry.EventWarning, map[string]any{
			"message":    "generated model could not be persisted",
			"request_id": id,
		})
		subjectID = ""
	}

	// Step 6: terminal response event, then completion.
	c.metrics.RecordTokens(client.Name(), resp.Usage.PromptUnits, resp.Usage.CompletionUnits)
	c.metrics.RecordGeneration(client.Name(), "success", elapsed)
	c.push(id, registry.EventResponse, map[string]any{
		"response":        resp.Text,
		"tokens":          resp.Usage,
		"processing_time": elapsed.Seconds(),
		"request_id":      id,
		"subject_id":      subjectID,
	})
	if err := c.registry.MarkComplete(id, nil); err != nil {
		slog.Error("Failed to mark generation complete", "request_id", id, "error", err)
	}

	slog.Info("Generation completed",
		"request_id", id,
		"subject_id", subjectID,
		"provider", client.Name(),
		"model", model,
		"elapsed", elapsed.String(),
		"total_units", resp.Usage.TotalUnits,
	)
	return outcome{
		subjectID: subjectID,
		text:      resp.Text,
		usage:     resp.Usage,
		elapsed:   elapsed,
	}
}

// fail records the terminal error: error event last, completion flagged,
// metrics updated.
func (c *Coordinator) fail(span trace.Span, id, provider string,
	started time.Time, perr *llm.ProviderError) outcome {

	span.RecordError(perr)
	span.SetStatus(codes.Error, perr.Message)
	slog.Error("Generation failed",
		"request_id", id, "provider", provider, "kind", string(perr.Kind), "error", perr.Message)

	elapsed := time.Since(started)
	c.metrics.RecordError(provider, string(perr.Kind))
	c.metrics.RecordGeneration(provider, "error", elapsed)

	c.push(id, registry.EventError, map[string]any{
		"message":    perr.Message,
		"type":       string(perr.Kind),
		"code":       perr.Code,
		"status":     perr.HTTPStatus,
		"request_id": id,
	})
	if err := c.registry.MarkComplete(id, perr); err != nil {
		slog.Error("Failed to mark generation complete", "request_id", id, "error", err)
	}
	return outcome{elapsed: elapsed, perr: perr}
}

func (c *Coordinator) push(id, eventType string, data any) {
	if err := c.registry.PushEvent(id, eventType, data); err != nil {
		slog.Warn("Dropping progress event for unknown request",
			"request_id", id, "event", eventType, "error", err)
	}
}

// scheduleOrphanCleanup removes a completed entry nobody streamed. The
// stream publisher removes entries it delivered; this timer only fires
// for fire-and-forget submissions. Remove is idempotent, so racing the
// publisher is harmless.
func (c *Coordinator) scheduleOrphanCleanup(id string) {
	time.AfterFunc(orphanRetention, func() {
		if c.registry.Exists(id) && c.registry.IsComplete(id) {
			slog.Debug("Reclaiming unstreamed registry entry", "request_id", id)
			c.registry.Remove(id)
		}
	})
}

// resultTitle derives a stored title from the submission: the explicit
// title when given, else a truncated subject preview.
func resultTitle(req datatypes.GenerateModelRequest) string {
	if req.Title != "" {
		return req.Title
	}
	const maxTitle = 80
	if len(req.SubjectText) <= maxTitle {
		return req.SubjectText
	}
	return req.SubjectText[:maxTitle] + "..."
}
