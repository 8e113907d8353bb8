// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/ThreatCompassAI/ThreatCompass/services/llm"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/handlers"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/registry"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/services"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps carries everything the route handlers need.
type Deps struct {
	Providers   map[string]llm.Client
	APILog      *llm.APIEventLog
	Registry    *registry.Registry
	Store       store.Store
	Coordinator *services.Coordinator
	Suggester   *services.Suggester
	Stream      handlers.StreamConfig
}

// SetupRoutes registers all HTTP routes on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HandleHealth(deps.Providers))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/models", handlers.HandleGenerateModel(deps.Coordinator))
		v1.GET("/models/stream/:requestId", handlers.HandleGenerationStream(deps.Registry, deps.Stream))
		v1.GET("/models/:subjectId", handlers.HandleGetModel(deps.Store))
		v1.GET("/models/:subjectId/analyze", handlers.HandleAnalyzeModel(deps.Suggester))
		v1.GET("/models/:subjectId/suggestions", handlers.HandleSuggestThreats(deps.Suggester))
		v1.POST("/models/:subjectId/suggestions", handlers.HandleApplySuggestions(deps.Suggester))

		v1.GET("/providers/events", handlers.HandleProviderEvents(deps.APILog))
	}
}
