// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ErrNoEmbedder is returned when an embedding operation is requested
// but no embedder is configured.
var ErrNoEmbedder = errors.New("vector: no embedder configured")

// Embedder turns texts into embedding vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists and searches embedded chunks in Weaviate.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	client   *Client
	embedder Embedder
	log      *slog.Logger
}

// NewStore wires a resilient client and an optional embedder. With a
// nil embedder only keyword search and raw upserts of pre-vectorized
// items work.
func NewStore(client *Client, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, embedder: embedder, log: logger}
}

// IsConnected reports whether the backing Weaviate answers probes.
func (s *Store) IsConnected(ctx context.Context) bool {
	if s.client.IsAvailable() {
		return true
	}
	return s.client.checkHealth(ctx) == nil
}

// EmbedBatch delegates to the configured embedder.
func (s *Store) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	return s.embedder.EmbedBatch(ctx, texts)
}

// chunkClass builds the schema for a chunk collection. Vectorizer is
// "none": vectors are supplied by the embedder at upsert time.
func chunkClass(name string) *models.Class {
	filterable := new(bool)
	*filterable = true

	return &models.Class{
		Class:      name,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "chunkId", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "content", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "filePath", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "symbolName", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "language", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "kind", DataType: []string{"text"}, IndexFilterable: filterable, Tokenization: "field"},
			{Name: "startLine", DataType: []string{"int"}},
			{Name: "endLine", DataType: []string{"int"}},
		},
	}
}

// EnsureCollection creates the chunk class if it does not exist.
// Idempotent.
func (s *Store) EnsureCollection(ctx context.Context, collection string) error {
	if collection == "" {
		collection = DefaultCollection
	}

	return s.client.Execute(ctx, "ensure_collection", func() error {
		_, err := s.client.Weaviate().Schema().ClassGetter().WithClassName(collection).Do(ctx)
		if err == nil {
			return nil
		}

		s.log.Info("creating vector collection", slog.String("collection", collection))
		if err := s.client.Weaviate().Schema().ClassCreator().WithClass(chunkClass(collection)).Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", collection, err)
		}
		return nil
	})
}

// upsertBatchSize caps objects per Weaviate batch request.
const upsertBatchSize = 100

// UpsertBatch writes chunk items with their vectors. Object IDs come
// from ChunkUUID, so the operation is idempotent per chunk ID. Items
// without a vector are rejected.
func (s *Store) UpsertBatch(ctx context.Context, collection string, items []ChunkItem) error {
	if collection == "" {
		collection = DefaultCollection
	}
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if len(item.Vector) == 0 {
			return fmt.Errorf("vector: chunk %s has no vector", item.ID)
		}
	}

	for start := 0; start < len(items); start += upsertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + upsertBatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		objects := make([]*models.Object, len(batch))
		for i, item := range batch {
			objects[i] = chunkObject(collection, item)
		}

		err := s.client.Execute(ctx, "upsert_batch", func() error {
			resp, err := s.client.Weaviate().Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
			if err != nil {
				return err
			}
			return batchErrors(resp, s.log)
		})
		if err != nil {
			return err
		}
	}

	s.log.Debug("upserted chunk batch",
		slog.String("collection", collection),
		slog.Int("count", len(items)))
	return nil
}

func chunkObject(collection string, item ChunkItem) *models.Object {
	return &models.Object{
		Class:  collection,
		ID:     ChunkUUID(item.ID),
		Vector: item.Vector,
		Properties: map[string]interface{}{
			"chunkId":    item.ID,
			"content":    item.Content,
			"filePath":   item.FilePath,
			"symbolName": item.SymbolName,
			"language":   item.Language,
			"kind":       item.Kind,
			"startLine":  item.StartLine,
			"endLine":    item.EndLine,
		},
	}
}

// batchErrors surfaces per-object batch failures. A batch where every
// object failed is an error; partial failures are logged and
// tolerated.
func batchErrors(resp []models.ObjectsGetResponse, log *slog.Logger) error {
	if len(resp) == 0 {
		return nil
	}
	failed := 0
	var firstMsg string
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil || len(obj.Result.Errors.Error) == 0 {
			continue
		}
		failed++
		msg := obj.Result.Errors.Error[0].Message
		if firstMsg == "" {
			firstMsg = msg
		}
		log.Warn("vector batch item failed", slog.String("error", msg))
	}
	if failed == len(resp) {
		return fmt.Errorf("all %d batch objects failed: %s", failed, firstMsg)
	}
	return nil
}

// CollectionInfo returns the object count for a collection.
func (s *Store) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	var count int64
	err := s.client.Execute(ctx, "collection_info", func() error {
		result, err := s.client.Weaviate().GraphQL().Aggregate().
			WithClassName(collection).
			WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("aggregate query: %s", result.Errors[0].Message)
		}
		count = aggregateCount(result, collection)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{Name: collection, Count: count}, nil
}

// aggregateCount digs the meta count out of an Aggregate response.
func aggregateCount(result *models.GraphQLResponse, collection string) int64 {
	aggregate, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	rows, ok := aggregate[collection].([]interface{})
	if !ok || len(rows) == 0 {
		return 0
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	// GraphQL numbers arrive as float64.
	count, ok := meta["count"].(float64)
	if !ok {
		return 0
	}
	return int64(count)
}

// Search finds chunks matching the query. With an embedder configured
// it runs a near-vector search; otherwise it falls back to BM25
// keyword ranking.
func (s *Store) Search(ctx context.Context, collection, query string, limit int) ([]SearchResult, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if limit <= 0 {
		limit = 10
	}

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "content"},
		{Name: "filePath"},
		{Name: "symbolName"},
		{Name: "language"},
		{Name: "kind"},
		{Name: "startLine"},
		{Name: "endLine"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	builder := s.client.Weaviate().GraphQL().Get().
		WithClassName(collection).
		WithFields(fields...).
		WithLimit(limit)

	if s.embedder != nil {
		queryVector, err := s.embedder.EmbedBatch(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("vector: embed query: %w", err)
		}
		if len(queryVector) == 0 {
			return nil, errors.New("vector: embedder returned no vector for query")
		}
		nearVector := s.client.Weaviate().GraphQL().NearVectorArgBuilder().
			WithVector(queryVector[0])
		builder = builder.WithNearVector(nearVector)
	} else {
		bm25 := s.client.Weaviate().GraphQL().Bm25ArgBuilder().WithQuery(query)
		builder = builder.WithBM25(bm25)
	}

	var results []SearchResult
	err := s.client.Execute(ctx, "search", func() error {
		result, err := builder.Do(ctx)
		if err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("search query: %s", result.Errors[0].Message)
		}
		results = parseSearchResults(result, collection)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// parseSearchResults walks the untyped GraphQL response into typed
// results. Malformed entries are skipped.
func parseSearchResults(result *models.GraphQLResponse, collection string) []SearchResult {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	rows, ok := data[collection].([]interface{})
	if !ok {
		return nil
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		r := SearchResult{
			ChunkID:    stringProp(m, "chunkId"),
			Content:    stringProp(m, "content"),
			FilePath:   stringProp(m, "filePath"),
			SymbolName: stringProp(m, "symbolName"),
			Language:   stringProp(m, "language"),
			Kind:       stringProp(m, "kind"),
			StartLine:  intProp(m, "startLine"),
			EndLine:    intProp(m, "endLine"),
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				r.Certainty = certainty
			}
		}
		results = append(results, r)
	}
	return results
}

func stringProp(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intProp(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

// DeleteByFile removes every chunk object belonging to a file. Used
// when a tracked file disappears between syncs.
func (s *Store) DeleteByFile(ctx context.Context, collection, filePath string) error {
	if collection == "" {
		collection = DefaultCollection
	}

	where := filters.Where().
		WithPath([]string{"filePath"}).
		WithOperator(filters.Equal).
		WithValueString(filePath)

	return s.client.Execute(ctx, "delete_by_file", func() error {
		_, err := s.client.Weaviate().Batch().ObjectsBatchDeleter().
			WithClassName(collection).
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("delete chunks for %s: %w", filePath, err)
		}
		return nil
	})
}
