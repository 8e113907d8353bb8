// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(subjectID string) datatypes.ModelResult {
	return datatypes.ModelResult{
		SubjectID:   subjectID,
		Title:       "Payment Service",
		ModelUsed:   "llama3",
		Provider:    "ollama",
		RawText:     "## Threat: Card Data Leak\n**Description:** PAN stored unencrypted.\n",
		SubjectText: "A payment gateway with a database.",
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

// =============================================================================
// Save / Get Tests
// =============================================================================

func TestStore_SaveAndGetResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleResult("s1")
	require.NoError(t, s.SaveResult(ctx, want))

	got, err := s.GetResult(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_GetResultNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveOverwritesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := sampleResult("s1")
	require.NoError(t, s.SaveResult(ctx, first))

	updated := first
	updated.RawText = first.RawText + "\n## Threat: Added Later\n**Description:** Appended suggestion.\n"
	require.NoError(t, s.SaveResult(ctx, updated))

	got, err := s.GetResult(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, updated.RawText, got.RawText)
}

// =============================================================================
// Corpus Listing Tests
// =============================================================================

func TestStore_ListCorpus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResult(ctx, sampleResult("s1")))
	require.NoError(t, s.SaveResult(ctx, sampleResult("s2")))

	corpus, err := s.ListCorpus(ctx)
	require.NoError(t, err)
	require.Len(t, corpus, 2)

	ids := map[string]bool{}
	for _, entry := range corpus {
		ids[entry.SubjectID] = true
		assert.NotEmpty(t, entry.RawText)
		assert.NotEmpty(t, entry.Title)
	}
	assert.True(t, ids["s1"])
	assert.True(t, ids["s2"])
}

func TestStore_ListCorpusEmpty(t *testing.T) {
	s := openTestStore(t)

	corpus, err := s.ListCorpus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, corpus)
}
