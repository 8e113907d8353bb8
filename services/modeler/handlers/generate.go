// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ThreatCompassAI/ThreatCompass/services/llm"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/services"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
)

// HandleGenerateModel accepts a threat-model generation submission.
//
// The default mode returns 202 with a request id immediately; the
// generation runs in the background and the client follows it on the
// stream endpoint. With ?sync=true the handler blocks until the
// generation finishes and returns the full result.
func HandleGenerateModel(coord *services.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := streamTracer.Start(c.Request.Context(), "HandleGenerateModel")
		defer span.End()

		var req datatypes.GenerateModelRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse generation request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if c.Query("sync") == "true" {
			resp, err := coord.GenerateSync(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				status, body := providerErrorResponse(err)
				c.JSON(status, body)
				return
			}
			c.JSON(http.StatusOK, resp)
			return
		}

		requestID, err := coord.Submit(req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, datatypes.GenerateModelResponse{RequestID: requestID})
	}
}

// providerErrorResponse maps the error taxonomy onto HTTP statuses for
// the synchronous mode. Messages are already credential-safe.
func providerErrorResponse(err error) (int, gin.H) {
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError, gin.H{"error": "generation failed"}
	}

	status := http.StatusBadGateway
	switch pe.Kind {
	case llm.ErrPromptNotFound:
		status = http.StatusBadRequest
	case llm.ErrRateLimitOrQuota:
		status = http.StatusTooManyRequests
	case llm.ErrNetworkOrTimeout:
		status = http.StatusGatewayTimeout
	}
	return status, gin.H{
		"error": pe.Message,
		"type":  string(pe.Kind),
		"code":  pe.Code,
	}
}
