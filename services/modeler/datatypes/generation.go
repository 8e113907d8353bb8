// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for the generation
// endpoints, plus their validation rules. For the threat-model domain
// types, see model.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Input Bounds
// =============================================================================

const (
	// MaxSubjectBytes is the maximum size of a submitted subject
	// description. Checked in bytes, not runes, so an oversized payload
	// cannot exhaust memory before validation runs.
	MaxSubjectBytes = 32 * 1024 // 32KB

	// MaxTemplateIDLength bounds the prompt template identifier.
	MaxTemplateIDLength = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// generationValidate is the validator instance for generation datatypes.
// Initialized in init() with custom validators.
var generationValidate *validator.Validate

func init() {
	generationValidate = validator.New()
	_ = generationValidate.RegisterValidation("maxbytes", validateSubjectBytes)
}

// validateSubjectBytes enforces MaxSubjectBytes on a string field.
func validateSubjectBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxSubjectBytes
}

// =============================================================================
// Submission Types
// =============================================================================

// GenerateModelRequest is the submission payload for a new generation.
//
// Provider selects the backend family ("openai" or "ollama"). Model and
// PromptTemplateID are optional; when Model is empty the provider's own
// default is used, and when PromptTemplateID is empty the built-in
// template applies.
type GenerateModelRequest struct {
	SubjectText      string `json:"subject_text" validate:"required,maxbytes"`
	Provider         string `json:"provider" validate:"required,oneof=openai ollama"`
	Model            string `json:"model" validate:"omitempty,max=128"`
	PromptTemplateID string `json:"prompt_template_id" validate:"omitempty,max=128"`
	Title            string `json:"title" validate:"omitempty,max=256"`
}

// Validate checks the request against its declared rules.
func (r *GenerateModelRequest) Validate() error {
	return generationValidate.Struct(r)
}

// GenerateModelResponse is returned immediately on asynchronous
// submission. The request id correlates the submission with its stream
// connection.
type GenerateModelResponse struct {
	RequestID string `json:"request_id"`
}

// SyncGenerateResponse is returned by the simplified synchronous mode
// once the generation has completed.
type SyncGenerateResponse struct {
	SubjectID      string     `json:"subject_id"`
	Response       string     `json:"response"`
	Tokens         TokenUsage `json:"tokens"`
	ProcessingTime float64    `json:"processing_time_seconds"`
}

// TokenUsage is the normalized provider usage accounting.
type TokenUsage struct {
	PromptUnits     int `json:"prompt_units"`
	CompletionUnits int `json:"completion_units"`
	TotalUnits      int `json:"total_units"`
}

// =============================================================================
// Suggestion Types
// =============================================================================

// ApplySuggestionsRequest selects suggested threats to merge into an
// existing model's raw text.
type ApplySuggestionsRequest struct {
	Threats []ThreatRecord `json:"threats" validate:"required,min=1,max=50"`
}

// Validate checks the request against its declared rules.
func (r *ApplySuggestionsRequest) Validate() error {
	return generationValidate.Struct(r)
}

// ApplySuggestionsResponse carries the updated raw model text after the
// selected threats have been appended and persisted.
type ApplySuggestionsResponse struct {
	SubjectID  string `json:"subject_id"`
	RawText    string `json:"raw_text"`
	AddedCount int    `json:"added_count"`
}
