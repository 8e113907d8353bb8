// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"log/slog"
	"strings"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
)

// parseState tracks which block of a threat section the line scanner is
// currently inside.
type parseState int

const (
	seekHeading parseState = iota
	inDescription
	inMitigation
)

// Block markers of the generated markdown-like convention.
const (
	threatHeadingPrefix = "##"
	descriptionMarker   = "**description:**"
	mitigationMarker    = "**mitigation:**"
)

// ExtractThreats parses the markdown-like threat convention out of
// generated model text:
//
//	## Threat: <title>
//	**Description:** <text...>
//	**Mitigation:** <text...>
//
// The parser is a tolerant line-oriented state machine. A block missing
// its description is skipped and logged; a missing mitigation is kept
// with an empty mitigation. A malformed block never aborts the parse,
// so N well-formed blocks always yield exactly N records.
func ExtractThreats(text string) []datatypes.ThreatRecord {
	var (
		threats []datatypes.ThreatRecord
		current datatypes.ThreatRecord
		state   = seekHeading
		desc    strings.Builder
		mitig   strings.Builder
	)

	flush := func() {
		if current.Title == "" {
			return
		}
		current.Description = strings.TrimSpace(desc.String())
		current.Mitigation = strings.TrimSpace(mitig.String())
		if current.Description == "" {
			// Malformed block: heading without a description. Skip it
			// and keep going.
			slog.Debug("Skipping threat block without description", "title", current.Title)
		} else {
			current.Category = Categorize(current.Title, current.Description)
			threats = append(threats, current)
		}
		current = datatypes.ThreatRecord{}
		desc.Reset()
		mitig.Reset()
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)

		if strings.HasPrefix(line, threatHeadingPrefix) {
			flush()
			title := parseHeadingTitle(line)
			if title == "" {
				state = seekHeading
				continue
			}
			current.Title = title
			state = inDescription
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, descriptionMarker):
			state = inDescription
			appendLine(&desc, strings.TrimSpace(line[len(descriptionMarker):]))
		case strings.HasPrefix(lower, mitigationMarker):
			state = inMitigation
			appendLine(&mitig, strings.TrimSpace(line[len(mitigationMarker):]))
		default:
			if line == "" || current.Title == "" {
				continue
			}
			switch state {
			case inDescription:
				appendLine(&desc, line)
			case inMitigation:
				appendLine(&mitig, line)
			}
		}
	}
	flush()

	return threats
}

// FormatThreatBlock renders a record back into the parse convention, so
// suggested threats can be appended to a stored model's raw text and
// re-extracted later.
func FormatThreatBlock(t datatypes.ThreatRecord) string {
	var b strings.Builder
	b.WriteString("## Threat: ")
	b.WriteString(t.Title)
	b.WriteString("\n**Description:** ")
	b.WriteString(t.Description)
	if t.Mitigation != "" {
		b.WriteString("\n**Mitigation:** ")
		b.WriteString(t.Mitigation)
	}
	b.WriteString("\n")
	return b.String()
}

// parseHeadingTitle strips heading hashes and an optional "Threat:"
// label, returning the bare title.
func parseHeadingTitle(line string) string {
	title := strings.TrimLeft(line, "#")
	title = strings.TrimSpace(title)
	lower := strings.ToLower(title)
	if strings.HasPrefix(lower, "threat:") {
		title = strings.TrimSpace(title[len("threat:"):])
	} else if strings.HasPrefix(lower, "threat ") {
		rest := strings.TrimSpace(title[len("threat "):])
		// "Threat 3: Broken Access Control" style numbering.
		if idx := strings.Index(rest, ":"); idx >= 0 {
			title = strings.TrimSpace(rest[idx+1:])
		}
	}
	return title
}

func appendLine(b *strings.Builder, line string) {
	if line == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString(" ")
	}
	b.WriteString(line)
}
