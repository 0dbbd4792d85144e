// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// SymbolsByName returns every symbol node whose bare name matches,
// regardless of file. Lookups go through an in-memory index that is
// rebuilt lazily after symbol writes or deletes.
func (s *Store) SymbolsByName(ctx context.Context, name string) ([]SymbolNode, error) {
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	qualified := append([]string(nil), s.byName[name]...)
	s.mu.RUnlock()

	nodes := make([]SymbolNode, 0, len(qualified))
	for _, qn := range qualified {
		node, err := s.GetSymbolNode(ctx, qn)
		if errors.Is(err, ErrNotFound) {
			// Index lagging behind a concurrent delete.
			continue
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

func (s *Store) ensureIndex(ctx context.Context) error {
	s.mu.RLock()
	ok := s.indexed
	s.mu.RUnlock()
	if ok {
		return nil
	}

	byName := make(map[string][]string)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixSymbol), func(_ []byte, val []byte) error {
			var node SymbolNode
			if err := json.Unmarshal(val, &node); err != nil {
				return err
			}
			byName[node.Name] = append(byName[node.Name], node.QualifiedName)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("graph: rebuild name index: %w", err)
	}

	s.mu.Lock()
	s.byName = byName
	s.indexed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) invalidateIndex() {
	s.mu.Lock()
	s.indexed = false
	s.byName = nil
	s.mu.Unlock()
}

// Stats counts nodes and edges by prefix scan. Concurrent callers
// share one scan via singleflight.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	result, err, _ := s.flight.Do("stats", func() (interface{}, error) {
		return s.computeStats(ctx)
	})
	if err != nil {
		return nil, err
	}
	stats, ok := result.(*Stats)
	if !ok {
		return nil, fmt.Errorf("graph: unexpected stats type %T", result)
	}
	return stats, nil
}

func (s *Store) computeStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{EdgesByKind: make(map[string]int)}
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		// Counting only needs keys.
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			switch {
			case strings.HasPrefix(key, prefixFile):
				stats.FileCount++
			case strings.HasPrefix(key, prefixSymbol):
				stats.SymbolCount++
			case strings.HasPrefix(key, prefixCommit):
				stats.CommitCount++
			case strings.HasPrefix(key, prefixDocument):
				stats.DocumentCount++
			case strings.HasPrefix(key, prefixEdge):
				stats.EdgeCount++
				// Edge kind is the first key segment after the
				// prefix and never contains the separator.
				rest := strings.TrimPrefix(key, prefixEdge)
				if idx := strings.IndexByte(rest, ':'); idx > 0 {
					stats.EdgesByKind[rest[:idx]]++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// BatchUpdateSymbolVectorIDs attaches vector store object IDs to
// symbol nodes after their chunks have been embedded. Symbols missing
// from the graph are reported in the result, not treated as a failure.
func (s *Store) BatchUpdateSymbolVectorIDs(ctx context.Context, vectorIDs map[string][]string) (*VectorLinkResult, error) {
	result := &VectorLinkResult{}
	if len(vectorIDs) == 0 {
		return result, nil
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		for qualifiedName, ids := range vectorIDs {
			key := symbolKey(qualifiedName)
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				result.Errors = append(result.Errors, qualifiedName)
				continue
			}
			if err != nil {
				return fmt.Errorf("graph: get symbol %s: %w", qualifiedName, err)
			}

			var node SymbolNode
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &node)
			})
			if err != nil {
				return fmt.Errorf("graph: decode symbol %s: %w", qualifiedName, err)
			}

			node.VectorIDs = ids
			value, err := json.Marshal(node)
			if err != nil {
				return fmt.Errorf("graph: marshal symbol %s: %w", qualifiedName, err)
			}
			if err := txn.Set(key, value); err != nil {
				return fmt.Errorf("graph: set symbol %s: %w", qualifiedName, err)
			}
			result.Updated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
