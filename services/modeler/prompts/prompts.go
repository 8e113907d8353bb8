// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompts resolves generation prompt templates.
//
// A template is free text with a {{SUBJECT}} placeholder. Templates come
// from an optional YAML library file; the built-in default is always
// available and instructs the model to emit the threat block convention
// the analysis parser understands.
package prompts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SubjectPlaceholder is substituted with the submitted subject text.
const SubjectPlaceholder = "{{SUBJECT}}"

// DefaultTemplateID names the built-in template.
const DefaultTemplateID = "default"

// ErrTemplateNotFound is returned when a requested template id does not
// resolve. Terminal for the generation that requested it.
var ErrTemplateNotFound = errors.New("prompt template not found")

// builtinTemplate keeps the generated output aligned with the threat
// block parser: heading, description, mitigation.
const builtinTemplate = `You are a security architect. Produce a thorough threat model for the system described below.

System description:
{{SUBJECT}}

List every significant threat. For each threat use exactly this format:

## Threat: <short threat name>
**Description:** <how the threat applies to this system>
**Mitigation:** <concrete countermeasure>

Cover authentication, authorization, input validation, data exposure, encryption, session management, network security, configuration, API security, dependencies, logging, and error handling where relevant.`

// libraryFile is the YAML shape of a template library.
type libraryFile struct {
	Templates []struct {
		ID       string `yaml:"id"`
		Template string `yaml:"template"`
	} `yaml:"templates"`
}

// Library holds the resolvable templates.
type Library struct {
	templates map[string]string
}

// NewLibrary returns a library containing only the built-in default.
func NewLibrary() *Library {
	return &Library{templates: map[string]string{DefaultTemplateID: builtinTemplate}}
}

// LoadLibrary reads a YAML template file on top of the built-in default.
// An empty path returns the built-in library; a missing or unreadable
// file is an error so misconfiguration is caught at startup, not at
// generation time.
func LoadLibrary(path string) (*Library, error) {
	lib := NewLibrary()
	if path == "" {
		return lib, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template library %s: %w", path, err)
	}
	var file libraryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse template library %s: %w", path, err)
	}

	for _, t := range file.Templates {
		if t.ID == "" || strings.TrimSpace(t.Template) == "" {
			slog.Warn("Skipping template without id or body", "id", t.ID)
			continue
		}
		if !strings.Contains(t.Template, SubjectPlaceholder) {
			slog.Warn("Template has no subject placeholder, subject text will not be injected",
				"id", t.ID, "placeholder", SubjectPlaceholder)
		}
		lib.templates[t.ID] = t.Template
	}
	slog.Info("Loaded prompt template library", "path", path, "templates", len(lib.templates))
	return lib, nil
}

// Resolve returns the template for the id. An empty id resolves to the
// built-in default; an unknown id returns ErrTemplateNotFound.
func (l *Library) Resolve(id string) (string, error) {
	if id == "" {
		id = DefaultTemplateID
	}
	tpl, ok := l.templates[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	return tpl, nil
}

// Substitute injects the subject text into the template's placeholder.
func Substitute(template, subjectText string) string {
	return strings.ReplaceAll(template, SubjectPlaceholder, subjectText)
}
