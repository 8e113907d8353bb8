// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"strings"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
)

// categoryRule maps a keyword group to a category. Rules are evaluated
// in order against the lower-cased title+description; the first group
// with any match wins.
type categoryRule struct {
	category datatypes.ThreatCategory
	keywords []string
}

var categoryRules = []categoryRule{
	{datatypes.CategoryAuthentication, []string{
		"authentication", "password", "credential", "login", "brute force",
		"mfa", "2fa", "identity spoof",
	}},
	{datatypes.CategoryAuthorization, []string{
		"authorization", "access control", "privilege", "permission",
		"rbac", "idor", "escalation",
	}},
	{datatypes.CategoryInputValidation, []string{
		"injection", "xss", "cross-site scripting", "sql", "validation",
		"sanitiz", "deserializ", "path traversal", "buffer overflow",
	}},
	{datatypes.CategoryDataExposure, []string{
		"exposure", "leak", "sensitive data", "disclosure", "pii",
		"exfiltrat",
	}},
	{datatypes.CategoryEncryption, []string{
		"encrypt", "plaintext", "cleartext", "tls", "cryptograph",
		"certificate", "cipher",
	}},
	{datatypes.CategorySessionMgmt, []string{
		"session", "cookie", "csrf", "cross-site request", "fixation",
	}},
	{datatypes.CategoryNetworkSecurity, []string{
		"network", "firewall", "ddos", "denial of service",
		"man-in-the-middle", "mitm", "open port", "sniff",
	}},
	{datatypes.CategoryConfiguration, []string{
		"misconfigur", "configuration", "default setting",
		"hardening", "debug mode",
	}},
	{datatypes.CategoryAPISecurity, []string{
		"api", "rate limit", "endpoint abuse", "mass assignment",
	}},
	{datatypes.CategoryDependency, []string{
		"dependency", "third-party", "supply chain", "outdated",
		"vulnerable component", "cve", "library",
	}},
	{datatypes.CategoryLogging, []string{
		"logging", "monitoring", "audit", "log tamper", "detection",
	}},
	{datatypes.CategoryErrorHandling, []string{
		"error handling", "stack trace", "exception", "error message",
		"verbose error",
	}},
}

// Categorize assigns a threat to exactly one category based on its title
// and description. Total: anything matching no rule is CategoryOther.
func Categorize(title, description string) datatypes.ThreatCategory {
	haystack := strings.ToLower(title + " " + description)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.category
			}
		}
	}
	return datatypes.CategoryOther
}
