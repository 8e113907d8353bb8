// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis extracts structure from subject descriptions and
// generated threat-model text.
//
// Everything here is pure text processing: term salience ranking,
// component vocabulary matching, threat block parsing, keyword
// categorization, and corpus similarity scoring. No function in this
// package performs network or storage I/O; the corpus is always handed
// in by the caller.
package analysis

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
)

const (
	// topKeyTerms is how many frequency-ranked terms ExtractKeyTerms
	// keeps before appending recognized component words.
	topKeyTerms = 10

	// minTermLength filters out tokens too short to be salient.
	minTermLength = 3

	// similarityFloor excludes weak corpus matches. Entries scoring at
	// or below this value are dropped, not ranked.
	similarityFloor = 0.2

	// maxSimilarSubjects caps the ranked similarity list.
	maxSimilarSubjects = 5
)

// componentVocabulary is the fixed set of system/infrastructure nouns
// recognized by IdentifySystemComponents. Matching is a case-insensitive
// substring check, so only words listed here are ever reported.
var componentVocabulary = []string{
	"database",
	"api",
	"authentication",
	"authorization",
	"login",
	"session",
	"cache",
	"gateway",
	"queue",
	"payment",
	"upload",
	"server",
	"frontend",
	"backend",
	"microservice",
	"container",
	"storage",
	"network",
	"encryption",
	"token",
	"webhook",
	"websocket",
	"load balancer",
	"file system",
	"message broker",
}

// stopwords are excluded from term-salience ranking.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "with": {}, "this": {},
	"are": {}, "was": {}, "will": {}, "has": {}, "have": {}, "can": {},
	"its": {}, "from": {}, "into": {}, "which": {}, "when": {}, "where": {},
	"all": {}, "each": {}, "any": {}, "also": {}, "such": {},
	"should": {}, "would": {}, "could": {}, "may": {}, "must": {},
	"not": {}, "but": {}, "they": {}, "their": {}, "them": {},
	"uses": {}, "use": {}, "used": {}, "using": {},
	"between": {}, "through": {}, "over": {}, "under": {},
}

// ExtractKeyTerms returns the most salient terms of the input, ranked by
// self-relative frequency, followed by any recognized component word
// present in the text but not already captured. The output is
// deterministic for a given input: ties rank by first occurrence.
func ExtractKeyTerms(text string) []string {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return []string{}
	}

	counts := make(map[string]int, len(tokens))
	firstSeen := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if len(tok) < minTermLength {
			continue
		}
		if _, seen := counts[tok]; !seen {
			firstSeen[tok] = i
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return firstSeen[order[a]] < firstSeen[order[b]]
	})

	limit := topKeyTerms
	if len(order) < limit {
		limit = len(order)
	}
	terms := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, tok := range order[:limit] {
		terms = append(terms, tok)
		seen[tok] = struct{}{}
	}

	// Component words carry domain signal even at low frequency; append
	// the ones the ranking missed.
	for _, comp := range IdentifySystemComponents(text) {
		if _, dup := seen[comp]; dup {
			continue
		}
		seen[comp] = struct{}{}
		terms = append(terms, comp)
	}
	return terms
}

// IdentifySystemComponents returns every vocabulary entry occurring in
// the text, matched case-insensitively as a substring.
func IdentifySystemComponents(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, comp := range componentVocabulary {
		if strings.Contains(lower, comp) {
			found = append(found, comp)
		}
	}
	return found
}

// ComputeSimilarity scores the subject's key terms against each corpus
// entry: the fraction of terms occurring case-insensitively in the
// entry's raw text. The subject's own entry is excluded, scores at or
// below the floor are dropped, and at most the top five remain, sorted
// descending.
func ComputeSimilarity(subjectID string, keyTerms []string,
	corpus []datatypes.SubjectCorpusEntry) []datatypes.SimilarSubject {

	if len(keyTerms) == 0 {
		return nil
	}

	var ranked []datatypes.SimilarSubject
	for _, entry := range corpus {
		if entry.SubjectID == subjectID {
			continue
		}
		haystack := strings.ToLower(entry.RawText)
		matched := 0
		for _, term := range keyTerms {
			if strings.Contains(haystack, strings.ToLower(term)) {
				matched++
			}
		}
		score := float64(matched) / float64(len(keyTerms))
		if score <= similarityFloor {
			continue
		}
		ranked = append(ranked, datatypes.SimilarSubject{
			SubjectID: entry.SubjectID,
			Title:     entry.Title,
			Score:     score,
		})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})
	if len(ranked) > maxSimilarSubjects {
		ranked = ranked[:maxSimilarSubjects]
	}
	return ranked
}

// Analyze composes the engine: extracts and categorizes threats from the
// generated text, computes category coverage against the full
// enumeration, and ranks corpus similarity for the subject.
func Analyze(subjectID, subjectText, generatedText string,
	corpus []datatypes.SubjectCorpusEntry) datatypes.AnalysisResult {

	threats := ExtractThreats(generatedText)

	covered := make(map[datatypes.ThreatCategory]struct{}, len(threats))
	for _, t := range threats {
		covered[t.Category] = struct{}{}
	}

	var coveredList, missingList []datatypes.ThreatCategory
	for _, cat := range datatypes.AllCategories() {
		if _, ok := covered[cat]; ok {
			coveredList = append(coveredList, cat)
		} else {
			missingList = append(missingList, cat)
		}
	}

	keyTerms := ExtractKeyTerms(subjectText)
	return datatypes.AnalysisResult{
		Components:          IdentifySystemComponents(subjectText),
		KeyTerms:            keyTerms,
		ExistingThreatCount: len(threats),
		CoveredCategories:   coveredList,
		MissingCategories:   missingList,
		SimilarSubjects:     ComputeSimilarity(subjectID, keyTerms, corpus),
	}
}

// tokenize lower-cases the text and splits it on any non-letter,
// non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
