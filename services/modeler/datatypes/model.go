// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the modeler service.
//
// This file contains the threat-model domain types: threat categories,
// extracted threat records, the stored model result, and the analysis
// output returned by the coverage/similarity endpoints. For submission
// and stream payload types, see generation.go.
package datatypes

import "time"

// =============================================================================
// Threat Categories
// =============================================================================

// ThreatCategory classifies an individual threat for coverage analysis.
//
// The set is fixed. Every extracted threat is assigned exactly one
// category; anything that matches no classifier rule is CategoryOther.
type ThreatCategory string

const (
	CategoryAuthentication  ThreatCategory = "Authentication"
	CategoryAuthorization   ThreatCategory = "Authorization"
	CategoryInputValidation ThreatCategory = "Input Validation"
	CategoryDataExposure    ThreatCategory = "Data Exposure"
	CategoryEncryption      ThreatCategory = "Encryption"
	CategorySessionMgmt     ThreatCategory = "Session Management"
	CategoryNetworkSecurity ThreatCategory = "Network Security"
	CategoryConfiguration   ThreatCategory = "Configuration"
	CategoryAPISecurity     ThreatCategory = "API Security"
	CategoryDependency      ThreatCategory = "Dependency Security"
	CategoryLogging         ThreatCategory = "Logging/Monitoring"
	CategoryErrorHandling   ThreatCategory = "Error Handling"
	CategoryOther           ThreatCategory = "Other"
)

// AllCategories returns the full category enumeration in display order.
//
// The returned slice is a fresh copy; callers may mutate it.
func AllCategories() []ThreatCategory {
	return []ThreatCategory{
		CategoryAuthentication,
		CategoryAuthorization,
		CategoryInputValidation,
		CategoryDataExposure,
		CategoryEncryption,
		CategorySessionMgmt,
		CategoryNetworkSecurity,
		CategoryConfiguration,
		CategoryAPISecurity,
		CategoryDependency,
		CategoryLogging,
		CategoryErrorHandling,
		CategoryOther,
	}
}

// =============================================================================
// Threat Records
// =============================================================================

// ThreatRecord is one identified threat inside a generated model.
//
// Records are always re-derived from the stored raw model text; they are
// never persisted on their own. Mitigation may be empty when the source
// block omitted it.
type ThreatRecord struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Mitigation  string         `json:"mitigation"`
	Category    ThreatCategory `json:"category"`
}

// =============================================================================
// Stored Model Result
// =============================================================================

// ModelResult is the persisted output of one completed generation.
//
// RawText is the authoritative artifact; everything else is metadata
// recorded at persistence time.
type ModelResult struct {
	SubjectID   string    `json:"subject_id"`
	Title       string    `json:"title"`
	ModelUsed   string    `json:"model_used"`
	Provider    string    `json:"provider"`
	RawText     string    `json:"raw_text"`
	SubjectText string    `json:"subject_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubjectCorpusEntry is a previously generated model usable for
// similarity comparison. Read-only from the analysis side.
type SubjectCorpusEntry struct {
	SubjectID string `json:"subject_id"`
	Title     string `json:"title"`
	RawText   string `json:"raw_text"`
}

// =============================================================================
// Analysis Output
// =============================================================================

// SimilarSubject is one ranked similarity hit against the corpus.
// Score is always in (0.2, 1.0]; entries at or below 0.2 are dropped
// before ranking.
type SimilarSubject struct {
	SubjectID string  `json:"subject_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
}

// AnalysisResult is the aggregate output of comparing one subject against
// the corpus. Computed fresh per request and never persisted.
type AnalysisResult struct {
	Components          []string         `json:"components"`
	KeyTerms            []string         `json:"key_terms"`
	ExistingThreatCount int              `json:"existing_threat_count"`
	CoveredCategories   []ThreatCategory `json:"covered_categories"`
	MissingCategories   []ThreatCategory `json:"missing_categories"`
	SimilarSubjects     []SimilarSubject `json:"similar_subjects"`
}
