// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/ThreatCompassAI/ThreatCompass/services/llm"
	"github.com/gin-gonic/gin"
)

// HandleHealth reports liveness plus a per-provider availability probe.
// Probes are side-effect-free and never error; an unreachable backend
// simply reports false.
func HandleHealth(providers map[string]llm.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		backends := make(map[string]bool, len(providers))
		for name, client := range providers {
			backends[name] = client.CheckAvailability(c.Request.Context())
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"providers": backends,
		})
	}
}

// HandleProviderEvents exposes the rolling redacted API event log,
// oldest first. Observability data only; previews are truncated and
// credential-bearing text is masked before it ever enters the log.
func HandleProviderEvents(apiLog *llm.APIEventLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"events": apiLog.Snapshot()})
	}
}
