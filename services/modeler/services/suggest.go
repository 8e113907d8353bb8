// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/analysis"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var suggestTracer = otel.Tracer("threatcompass.modeler.suggest")

// maxSuggestions caps how many borrowed threats Suggest returns.
const maxSuggestions = 10

// Suggester compares a stored model against the corpus to find coverage
// gaps and candidate threats to fill them.
type Suggester struct {
	store store.Store
}

// NewSuggester wires the suggestion service to the persistent store.
func NewSuggester(st store.Store) *Suggester {
	return &Suggester{store: st}
}

// Analyze loads the model and corpus and returns the aggregate analysis:
// components, key terms, category coverage, and ranked similar subjects.
func (s *Suggester) Analyze(ctx context.Context, subjectID string) (datatypes.AnalysisResult, error) {
	ctx, span := suggestTracer.Start(ctx, "Suggester.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.subject_id", subjectID))

	result, err := s.store.GetResult(ctx, subjectID)
	if err != nil {
		return datatypes.AnalysisResult{}, fmt.Errorf("load model %s: %w", subjectID, err)
	}
	corpus, err := s.store.ListCorpus(ctx)
	if err != nil {
		return datatypes.AnalysisResult{}, fmt.Errorf("list corpus: %w", err)
	}

	return analysis.Analyze(subjectID, result.SubjectText, result.RawText, corpus), nil
}

// Suggest returns threats borrowed from similar subjects whose category
// is missing from the given model. Candidates keep their similarity
// ranking: threats from the closest subject come first.
func (s *Suggester) Suggest(ctx context.Context, subjectID string) ([]datatypes.ThreatRecord, error) {
	ctx, span := suggestTracer.Start(ctx, "Suggester.Suggest")
	defer span.End()
	span.SetAttributes(attribute.String("analysis.subject_id", subjectID))

	res, err := s.Analyze(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	missing := make(map[datatypes.ThreatCategory]struct{}, len(res.MissingCategories))
	for _, cat := range res.MissingCategories {
		missing[cat] = struct{}{}
	}

	var suggestions []datatypes.ThreatRecord
	seen := make(map[string]struct{})
	for _, similar := range res.SimilarSubjects {
		donor, err := s.store.GetResult(ctx, similar.SubjectID)
		if err != nil {
			slog.Warn("Skipping unreadable similar subject",
				"subject_id", similar.SubjectID, "error", err)
			continue
		}
		for _, threat := range analysis.ExtractThreats(donor.RawText) {
			if _, gap := missing[threat.Category]; !gap {
				continue
			}
			key := strings.ToLower(threat.Title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			suggestions = append(suggestions, threat)
			if len(suggestions) >= maxSuggestions {
				return suggestions, nil
			}
		}
	}
	return suggestions, nil
}

// ApplySuggestions appends the selected threats to the model's raw text
// as well-formed threat blocks, persists the update, and returns the new
// text. Threats whose title already exists in the model are skipped.
func (s *Suggester) ApplySuggestions(ctx context.Context, subjectID string,
	threats []datatypes.ThreatRecord) (datatypes.ApplySuggestionsResponse, error) {

	ctx, span := suggestTracer.Start(ctx, "Suggester.ApplySuggestions")
	defer span.End()
	span.SetAttributes(
		attribute.String("analysis.subject_id", subjectID),
		attribute.Int("analysis.selected", len(threats)),
	)

	result, err := s.store.GetResult(ctx, subjectID)
	if err != nil {
		return datatypes.ApplySuggestionsResponse{}, fmt.Errorf("load model %s: %w", subjectID, err)
	}

	existing := make(map[string]struct{})
	for _, t := range analysis.ExtractThreats(result.RawText) {
		existing[strings.ToLower(t.Title)] = struct{}{}
	}

	var appended strings.Builder
	added := 0
	for _, t := range threats {
		if t.Title == "" || t.Description == "" {
			continue
		}
		key := strings.ToLower(t.Title)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		appended.WriteString("\n")
		appended.WriteString(analysis.FormatThreatBlock(t))
		added++
	}

	if added > 0 {
		result.RawText = strings.TrimRight(result.RawText, "\n") + "\n" + appended.String()
		if err := s.store.SaveResult(ctx, result); err != nil {
			return datatypes.ApplySuggestionsResponse{}, fmt.Errorf("persist updated model %s: %w", subjectID, err)
		}
		slog.Info("Applied threat suggestions", "subject_id", subjectID, "added", added)
	}

	return datatypes.ApplySuggestionsResponse{
		SubjectID:  subjectID,
		RawText:    result.RawText,
		AddedCount: added,
	}, nil
}
