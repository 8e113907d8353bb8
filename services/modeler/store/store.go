// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists generated threat models.
//
// The store is a key-value surface over BadgerDB (~100µs local access).
// The generation core treats it purely as saveResult/getResult/listCorpus;
// indexing and durability settings live here.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no model exists for a subject id.
var ErrNotFound = errors.New("model result not found")

// modelKeyPrefix namespaces model results inside the shared database.
const modelKeyPrefix = "model:"

// Store is the persistence contract the generation coordinator and the
// analysis endpoints depend on.
type Store interface {
	// SaveResult persists one completed generation under its subject id.
	SaveResult(ctx context.Context, result datatypes.ModelResult) error

	// GetResult loads a stored model. Returns ErrNotFound when absent.
	GetResult(ctx context.Context, subjectID string) (datatypes.ModelResult, error)

	// ListCorpus returns every stored model as a corpus entry for
	// similarity comparison.
	ListCorpus(ctx context.Context) ([]datatypes.SubjectCorpusEntry, error)

	// Close releases the underlying database.
	Close() error
}

// Config holds configuration for the Badger-backed store.
type Config struct {
	// Path is the directory for database files. Required unless
	// InMemory is true; created if missing.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used by
	// tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable writes at the given
// path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests: no disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerStore implements Store on a BadgerDB instance.
type badgerStore struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates the Badger-backed store.
//
// The returned Store is safe for concurrent use. Caller must Close()
// when done.
func Open(cfg Config) (Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) SaveResult(ctx context.Context, result datatypes.ModelResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if result.SubjectID == "" {
		return errors.New("subject id must not be empty")
	}

	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal model result: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(modelKeyPrefix+result.SubjectID), value)
	})
	if err != nil {
		return fmt.Errorf("persist model result %s: %w", result.SubjectID, err)
	}
	return nil
}

func (s *badgerStore) GetResult(ctx context.Context, subjectID string) (datatypes.ModelResult, error) {
	var result datatypes.ModelResult
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("context cancelled: %w", err)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(modelKeyPrefix + subjectID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return result, ErrNotFound
		}
		return result, fmt.Errorf("load model result %s: %w", subjectID, err)
	}
	return result, nil
}

func (s *badgerStore) ListCorpus(ctx context.Context) ([]datatypes.SubjectCorpusEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var corpus []datatypes.SubjectCorpusEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(modelKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var result datatypes.ModelResult
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &result)
			})
			if err != nil {
				// One corrupt record should not hide the rest of the
				// corpus.
				slog.Warn("Skipping unreadable corpus entry",
					"key", string(it.Item().Key()), "error", err)
				continue
			}
			corpus = append(corpus, datatypes.SubjectCorpusEntry{
				SubjectID: result.SubjectID,
				Title:     result.Title,
				RawText:   result.RawText,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}
	return corpus, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*badgerStore)(nil)
