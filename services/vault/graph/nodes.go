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

// UpsertFileNodes writes file nodes keyed by path.
func (s *Store) UpsertFileNodes(ctx context.Context, nodes []FileNode) error {
	pairs := make([]kv, 0, len(nodes))
	for _, n := range nodes {
		if n.Path == "" {
			return errors.New("graph: file node missing path")
		}
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("graph: marshal file node %s: %w", n.Path, err)
		}
		pairs = append(pairs, kv{key: fileKey(n.Path), value: value})
	}
	return s.setMany(ctx, pairs)
}

// UpsertSymbolNodes writes symbol nodes keyed by qualified name and a
// DEFINES edge from each symbol's file. Nodes arriving without vector
// IDs inherit the stored ones, so a re-parse that runs while the
// vector store is offline does not erase earlier linkage.
func (s *Store) UpsertSymbolNodes(ctx context.Context, nodes []SymbolNode) error {
	carried, err := s.storedVectorIDs(ctx, nodes)
	if err != nil {
		return err
	}

	pairs := make([]kv, 0, len(nodes)*2)
	for _, n := range nodes {
		if n.QualifiedName == "" {
			return errors.New("graph: symbol node missing qualified name")
		}
		if n.VectorIDs == nil {
			n.VectorIDs = carried[n.QualifiedName]
		}
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("graph: marshal symbol node %s: %w", n.QualifiedName, err)
		}
		pairs = append(pairs, kv{key: symbolKey(n.QualifiedName), value: value})

		if n.FilePath != "" {
			edge := Edge{Kind: EdgeDefines, From: n.FilePath, To: n.QualifiedName, Line: n.StartLine}
			edgeValue, err := json.Marshal(edge)
			if err != nil {
				return fmt.Errorf("graph: marshal DEFINES edge for %s: %w", n.QualifiedName, err)
			}
			pairs = append(pairs, kv{key: edgeKey(edge), value: edgeValue})
		}
	}
	if err := s.setMany(ctx, pairs); err != nil {
		return err
	}
	s.invalidateIndex()
	return nil
}

// storedVectorIDs fetches the persisted vector IDs for every incoming
// node that has none of its own.
func (s *Store) storedVectorIDs(ctx context.Context, nodes []SymbolNode) (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, n := range nodes {
			if n.VectorIDs != nil || n.QualifiedName == "" {
				continue
			}
			item, err := txn.Get(symbolKey(n.QualifiedName))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("graph: read symbol node %s: %w", n.QualifiedName, err)
			}
			var prev SymbolNode
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &prev)
			}); err != nil {
				return fmt.Errorf("graph: decode symbol node %s: %w", n.QualifiedName, err)
			}
			if len(prev.VectorIDs) > 0 {
				out[n.QualifiedName] = prev.VectorIDs
			}
		}
		return nil
	})
	return out, err
}

// UpsertCommitNodes writes commit nodes keyed by SHA. MODIFIES edges
// are written separately via UpsertEdges.
func (s *Store) UpsertCommitNodes(ctx context.Context, nodes []CommitNode) error {
	pairs := make([]kv, 0, len(nodes))
	for _, n := range nodes {
		if n.SHA == "" {
			return errors.New("graph: commit node missing SHA")
		}
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("graph: marshal commit node %s: %w", n.SHA, err)
		}
		pairs = append(pairs, kv{key: commitKey(n.SHA), value: value})
	}
	return s.setMany(ctx, pairs)
}

// UpsertDocumentNodes writes document nodes keyed by path.
func (s *Store) UpsertDocumentNodes(ctx context.Context, nodes []DocumentNode) error {
	pairs := make([]kv, 0, len(nodes))
	for _, n := range nodes {
		if n.Path == "" {
			return errors.New("graph: document node missing path")
		}
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("graph: marshal document node %s: %w", n.Path, err)
		}
		pairs = append(pairs, kv{key: documentKey(n.Path), value: value})
	}
	return s.setMany(ctx, pairs)
}

// GetFileNode returns the file node for a path, or ErrNotFound.
func (s *Store) GetFileNode(ctx context.Context, path string) (*FileNode, error) {
	var node FileNode
	if err := s.getNode(ctx, fileKey(path), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// GetSymbolNode returns the symbol node for a qualified name, or
// ErrNotFound.
func (s *Store) GetSymbolNode(ctx context.Context, qualifiedName string) (*SymbolNode, error) {
	var node SymbolNode
	if err := s.getNode(ctx, symbolKey(qualifiedName), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// GetCommitNode returns the commit node for a SHA, or ErrNotFound.
func (s *Store) GetCommitNode(ctx context.Context, sha string) (*CommitNode, error) {
	var node CommitNode
	if err := s.getNode(ctx, commitKey(sha), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// GetDocumentNode returns the document node for a path, or
// ErrNotFound.
func (s *Store) GetDocumentNode(ctx context.Context, path string) (*DocumentNode, error) {
	var node DocumentNode
	if err := s.getNode(ctx, documentKey(path), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *Store) getNode(ctx context.Context, key []byte, dst interface{}) error {
	return s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return fmt.Errorf("graph: get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
}

// ListFileNodes returns every file node.
func (s *Store) ListFileNodes(ctx context.Context) ([]FileNode, error) {
	var nodes []FileNode
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixFile), func(_ []byte, val []byte) error {
			var node FileNode
			if err := json.Unmarshal(val, &node); err != nil {
				return err
			}
			nodes = append(nodes, node)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// ListDocumentNodes returns every document node.
func (s *Store) ListDocumentNodes(ctx context.Context) ([]DocumentNode, error) {
	var nodes []DocumentNode
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixDocument), func(_ []byte, val []byte) error {
			var node DocumentNode
			if err := json.Unmarshal(val, &node); err != nil {
				return err
			}
			nodes = append(nodes, node)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// SymbolsByFile returns the symbol nodes defined in the given file.
func (s *Store) SymbolsByFile(ctx context.Context, path string) ([]SymbolNode, error) {
	var nodes []SymbolNode
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixSymbol), func(_ []byte, val []byte) error {
			var node SymbolNode
			if err := json.Unmarshal(val, &node); err != nil {
				return err
			}
			if node.FilePath == path {
				nodes = append(nodes, node)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// DeleteFileNode removes a file node together with the symbols it
// defines and every edge touching the file or those symbols.
func (s *Store) DeleteFileNode(ctx context.Context, path string) error {
	symbols, err := s.SymbolsByFile(ctx, path)
	if err != nil {
		return err
	}

	// The file path and its symbols' qualified names are the endpoint
	// keys whose edges must go.
	gone := map[string]bool{path: true}
	keys := [][]byte{fileKey(path)}
	for _, sym := range symbols {
		gone[sym.QualifiedName] = true
		keys = append(keys, symbolKey(sym.QualifiedName))
	}

	edgeKeys, err := s.edgeKeysTouching(ctx, gone)
	if err != nil {
		return err
	}
	keys = append(keys, edgeKeys...)

	if err := s.deleteMany(keys); err != nil {
		return err
	}
	s.invalidateIndex()
	return nil
}

// DeleteDocumentNode removes a document node and every edge touching
// it.
func (s *Store) DeleteDocumentNode(ctx context.Context, path string) error {
	keys := [][]byte{documentKey(path)}
	edgeKeys, err := s.edgeKeysTouching(ctx, map[string]bool{path: true})
	if err != nil {
		return err
	}
	keys = append(keys, edgeKeys...)
	return s.deleteMany(keys)
}

// edgeKeysTouching scans all edges and returns the keys of those with
// an endpoint in the given set. Edge rows, not key strings, are the
// authority on endpoints: natural keys may themselves contain the
// separator.
func (s *Store) edgeKeysTouching(ctx context.Context, endpoints map[string]bool) ([][]byte, error) {
	var keys [][]byte
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte(prefixEdge), func(key []byte, val []byte) error {
			var edge Edge
			if err := json.Unmarshal(val, &edge); err != nil {
				return err
			}
			if endpoints[edge.From] || endpoints[edge.To] {
				keys = append(keys, append([]byte(nil), key...))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// scanPrefix iterates every key under prefix, passing each key and
// value to fn.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
