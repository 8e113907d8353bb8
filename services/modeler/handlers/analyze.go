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

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/services"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/store"
	"github.com/gin-gonic/gin"
)

// HandleGetModel returns a stored model by subject id.
func HandleGetModel(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("subjectId")
		result, err := st.GetResult(c.Request.Context(), subjectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
				return
			}
			slog.Error("Failed to load model", "subject_id", subjectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load model"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleAnalyzeModel compares a stored model against the corpus:
// components, key terms, category coverage, and similar subjects.
func HandleAnalyzeModel(suggester *services.Suggester) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("subjectId")
		result, err := suggester.Analyze(c.Request.Context(), subjectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
				return
			}
			slog.Error("Analysis failed", "subject_id", subjectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleSuggestThreats returns candidate threats for the model's missing
// categories, borrowed from similar subjects.
func HandleSuggestThreats(suggester *services.Suggester) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("subjectId")
		threats, err := suggester.Suggest(c.Request.Context(), subjectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
				return
			}
			slog.Error("Suggestion lookup failed", "subject_id", subjectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "suggestion lookup failed"})
			return
		}
		if threats == nil {
			threats = []datatypes.ThreatRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"subject_id": subjectID, "threats": threats})
	}
}

// HandleApplySuggestions appends selected threats to a stored model and
// returns the updated raw text.
func HandleApplySuggestions(suggester *services.Suggester) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("subjectId")

		var req datatypes.ApplySuggestionsRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("Failed to parse suggestions request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := suggester.ApplySuggestions(c.Request.Context(), subjectID, req.Threats)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
				return
			}
			slog.Error("Failed to apply suggestions", "subject_id", subjectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply suggestions"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
