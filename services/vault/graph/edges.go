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

	"github.com/dgraph-io/badger/v4"
)

// UpsertEdge writes a single edge keyed by kind and endpoints.
func (s *Store) UpsertEdge(ctx context.Context, edge Edge) error {
	return s.UpsertEdges(ctx, []Edge{edge})
}

// UpsertEdges writes edges keyed by kind and endpoints. Re-writing an
// existing edge replaces its payload.
func (s *Store) UpsertEdges(ctx context.Context, edges []Edge) error {
	pairs := make([]kv, 0, len(edges))
	for _, e := range edges {
		if e.Kind == "" || e.From == "" || e.To == "" {
			return errors.New("graph: edge missing kind or endpoint")
		}
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("graph: marshal %s edge %s -> %s: %w", e.Kind, e.From, e.To, err)
		}
		pairs = append(pairs, kv{key: edgeKey(e), value: value})
	}
	return s.setMany(ctx, pairs)
}

// EdgesFrom returns every edge originating at the given node key,
// optionally restricted to one kind. Pass an empty kind for all kinds.
func (s *Store) EdgesFrom(ctx context.Context, from string, kind EdgeKind) ([]Edge, error) {
	prefix := []byte(prefixEdge)
	if kind != "" {
		prefix = edgeKindPrefix(kind)
	}
	var edges []Edge
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, prefix, func(_ []byte, val []byte) error {
			var edge Edge
			if err := json.Unmarshal(val, &edge); err != nil {
				return err
			}
			if edge.From == from {
				edges = append(edges, edge)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// EdgesTo returns every edge terminating at the given node key,
// optionally restricted to one kind.
func (s *Store) EdgesTo(ctx context.Context, to string, kind EdgeKind) ([]Edge, error) {
	prefix := []byte(prefixEdge)
	if kind != "" {
		prefix = edgeKindPrefix(kind)
	}
	var edges []Edge
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, prefix, func(_ []byte, val []byte) error {
			var edge Edge
			if err := json.Unmarshal(val, &edge); err != nil {
				return err
			}
			if edge.To == to {
				edges = append(edges, edge)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// EdgesByKind returns every edge of one kind.
func (s *Store) EdgesByKind(ctx context.Context, kind EdgeKind) ([]Edge, error) {
	prefix := edgeKindPrefix(kind)
	var edges []Edge
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, prefix, func(_ []byte, val []byte) error {
			var edge Edge
			if err := json.Unmarshal(val, &edge); err != nil {
				return err
			}
			edges = append(edges, edge)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}
