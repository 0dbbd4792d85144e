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
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestChunkUUID_Deterministic(t *testing.T) {
	a := ChunkUUID("pkg/db.go#L10-42")
	b := ChunkUUID("pkg/db.go#L10-42")
	assert.Equal(t, a, b)

	c := ChunkUUID("pkg/db.go#L10-43")
	assert.NotEqual(t, a, c)

	// RFC 4122 text form.
	assert.Len(t, string(a), 36)
}

func TestSplitURL(t *testing.T) {
	tests := []struct {
		url    string
		scheme string
		host   string
	}{
		{"localhost:8080", "http", "localhost:8080"},
		{"http://localhost:8080", "http", "localhost:8080"},
		{"https://weaviate.example.com", "https", "weaviate.example.com"},
	}
	for _, tt := range tests {
		scheme, host := splitURL(tt.url)
		assert.Equal(t, tt.scheme, scheme, tt.url)
		assert.Equal(t, tt.host, host, tt.url)
	}
}

func TestClientConfig_Validate(t *testing.T) {
	cfg := ClientConfig{}
	cfg.applyDefaults()
	require.Error(t, cfg.validate())

	cfg = DefaultClientConfig("localhost:8080")
	require.NoError(t, cfg.validate())

	cfg.RetryJitter = 1.5
	require.Error(t, cfg.validate())
}

func TestClientConfig_ApplyDefaults(t *testing.T) {
	cfg := ClientConfig{URL: "localhost:8080"}
	cfg.applyDefaults()

	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 5, cfg.CircuitThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitWindow)
	assert.NotNil(t, cfg.Logger)
}

// newBreakerClient builds a client without a live Weaviate, for
// exercising the circuit breaker paths.
func newBreakerClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()
	cfg.applyDefaults()
	return &Client{
		cfg:      cfg,
		log:      slog.Default(),
		failures: make([]time.Time, cfg.CircuitThreshold),
	}
}

func TestExecute_RetriesRetryableErrors(t *testing.T) {
	c := newBreakerClient(t, ClientConfig{
		URL:          "localhost:8080",
		RetryBackoff: time.Millisecond,
	})

	calls := 0
	err := c.Execute(context.Background(), "test", func() error {
		calls++
		if calls == 1 {
			return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestExecute_NonRetryableFailsFast(t *testing.T) {
	c := newBreakerClient(t, ClientConfig{
		URL:          "localhost:8080",
		RetryBackoff: time.Millisecond,
	})

	calls := 0
	appErr := errors.New("bad request")
	err := c.Execute(context.Background(), "test", func() error {
		calls++
		return appErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErr)
	assert.Equal(t, 1, calls)
}

func TestExecute_CircuitOpensAfterThreshold(t *testing.T) {
	c := newBreakerClient(t, ClientConfig{
		URL:              "localhost:8080",
		RetryBackoff:     time.Millisecond,
		CircuitThreshold: 3,
		CircuitCooldown:  time.Hour,
	})
	// Disable retries so each Execute records exactly one failure.
	c.cfg.RetryAttempts = 0

	appErr := &net.OpError{Op: "dial", Err: errors.New("refused")}
	for i := 0; i < 3; i++ {
		err := c.Execute(context.Background(), "test", func() error { return appErr })
		require.Error(t, err)
	}
	assert.Equal(t, StateCircuitOpen, c.State())

	// Cooldown has not expired, requests are blocked without calling fn.
	calls := 0
	err := c.Execute(context.Background(), "test", func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestExecute_HalfOpenProbeRecovers(t *testing.T) {
	c := newBreakerClient(t, ClientConfig{
		URL:              "localhost:8080",
		CircuitThreshold: 2,
		CircuitCooldown:  time.Millisecond,
	})

	c.state.Store(int32(StateCircuitOpen))
	c.circuitOpenTime.Store(time.Now().Add(-time.Second).Unix())

	err := c.Execute(context.Background(), "test", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateConnected, c.State())
}

func TestExecute_HalfOpenAllowsSingleProbe(t *testing.T) {
	c := newBreakerClient(t, ClientConfig{URL: "localhost:8080"})
	c.state.Store(int32(StateHalfOpen))
	c.halfOpenProbe.Store(true)

	err := c.Execute(context.Background(), "test", func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestExecute_Closed(t *testing.T) {
	c := newBreakerClient(t, ClientConfig{URL: "localhost:8080"})
	c.closed.Store(true)

	err := c.Execute(context.Background(), "test", func() error { return nil })
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestBackoff_Bounds(t *testing.T) {
	c := newBreakerClient(t, ClientConfig{
		URL:             "localhost:8080",
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: time.Second,
		RetryJitter:     0.25,
	})

	for attempt := 1; attempt <= 10; attempt++ {
		b := c.backoff(attempt)
		assert.Greater(t, b, time.Duration(0))
		// Max plus full jitter headroom.
		assert.LessOrEqual(t, b, time.Second+time.Second/4)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, isRetryable(errors.New("schema mismatch")))
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "circuit_open", StateCircuitOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}

func TestChunkObject_MapsAllProperties(t *testing.T) {
	item := ChunkItem{
		ID:         "pkg/db.go#L10-42",
		Content:    "func Open() {}",
		FilePath:   "pkg/db.go",
		SymbolName: "Open",
		Language:   "go",
		Kind:       "function",
		StartLine:  10,
		EndLine:    42,
		Vector:     []float32{0.1, 0.2},
	}

	obj := chunkObject("CodeChunk", item)
	assert.Equal(t, "CodeChunk", obj.Class)
	assert.Equal(t, ChunkUUID(item.ID), obj.ID)
	assert.Equal(t, []float32{0.1, 0.2}, []float32(obj.Vector))

	props, ok := obj.Properties.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pkg/db.go#L10-42", props["chunkId"])
	assert.Equal(t, "Open", props["symbolName"])
	assert.Equal(t, 10, props["startLine"])
}

func TestBatchErrors(t *testing.T) {
	ok := models.ObjectsGetResponse{}
	failed := models.ObjectsGetResponse{
		Result: &models.ObjectsGetResponseAO2Result{
			Errors: &models.ErrorResponse{
				Error: []*models.ErrorResponseErrorItems0{{Message: "boom"}},
			},
		},
	}

	require.NoError(t, batchErrors(nil, slog.Default()))
	require.NoError(t, batchErrors([]models.ObjectsGetResponse{ok, failed}, slog.Default()))

	err := batchErrors([]models.ObjectsGetResponse{failed, failed}, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAggregateCount(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Aggregate": map[string]interface{}{
				"CodeChunk": []interface{}{
					map[string]interface{}{
						"meta": map[string]interface{}{"count": float64(42)},
					},
				},
			},
		},
	}
	assert.Equal(t, int64(42), aggregateCount(resp, "CodeChunk"))

	empty := &models.GraphQLResponse{Data: map[string]models.JSONObject{}}
	assert.Equal(t, int64(0), aggregateCount(empty, "CodeChunk"))
}

func TestParseSearchResults(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"CodeChunk": []interface{}{
					map[string]interface{}{
						"chunkId":    "pkg/db.go#L10-42",
						"content":    "func Open() {}",
						"filePath":   "pkg/db.go",
						"symbolName": "Open",
						"language":   "go",
						"kind":       "function",
						"startLine":  float64(10),
						"endLine":    float64(42),
						"_additional": map[string]interface{}{
							"certainty": 0.91,
						},
					},
					"not a map",
				},
			},
		},
	}

	results := parseSearchResults(resp, "CodeChunk")
	require.Len(t, results, 1)
	assert.Equal(t, "pkg/db.go#L10-42", results[0].ChunkID)
	assert.Equal(t, 10, results[0].StartLine)
	assert.Equal(t, 42, results[0].EndLine)
	assert.InDelta(t, 0.91, results[0].Certainty, 1e-9)

	none := parseSearchResults(&models.GraphQLResponse{Data: map[string]models.JSONObject{}}, "CodeChunk")
	assert.Empty(t, none)
}

func TestNewOpenAIEmbedder_RequiresKeyOrBaseURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewOpenAIEmbedder(EmbedderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")

	emb, err := NewOpenAIEmbedder(EmbedderConfig{BaseURL: "http://localhost:8000/v1"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", emb.cfg.Model)
	assert.Equal(t, 64, emb.cfg.BatchSize)
	// The raw key never sits in the config after sealing.
	assert.Empty(t, emb.cfg.APIKey)
}

func TestEmbedBatch_Empty(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	emb, err := NewOpenAIEmbedder(EmbedderConfig{})
	require.NoError(t, err)

	vectors, err := emb.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestStore_EmbedBatchWithoutEmbedder(t *testing.T) {
	store := NewStore(&Client{}, nil, nil)
	_, err := store.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrNoEmbedder)
}
