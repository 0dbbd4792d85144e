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
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// apiKeySecretPath is where container secrets mount the API key.
const apiKeySecretPath = "/run/secrets/openai_api_key"

// EmbedderConfig configures the OpenAI-compatible embedder.
type EmbedderConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint. Empty uses
	// api.openai.com; local inference servers work here too.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey overrides key discovery. When empty the key comes from
	// OPENAI_API_KEY or the container secret file.
	APIKey string

	// RequestsPerSecond throttles embedding calls. 0 disables the
	// limiter.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size.
	Burst int

	// BatchSize is the maximum texts per request.
	BatchSize int

	// Dimensions pins the expected vector width. 0 accepts whatever
	// the model returns.
	Dimensions int

	Logger *slog.Logger
}

// DefaultEmbedderConfig returns production defaults.
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Model:             "text-embedding-3-small",
		RequestsPerSecond: 8,
		Burst:             16,
		BatchSize:         64,
	}
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings
// API or any compatible endpoint. The API key lives in a memguard
// enclave between process start and first use.
//
// Thread Safety: safe for concurrent use.
type OpenAIEmbedder struct {
	cfg     EmbedderConfig
	key     *memguard.Enclave
	limiter *rate.Limiter
	log     *slog.Logger

	initOnce sync.Once
	client   *openai.Client
	initErr  error
}

// NewOpenAIEmbedder resolves the API key and seals it. Key discovery
// order: explicit config, OPENAI_API_KEY, container secret file. A
// missing key is allowed only with a custom BaseURL, since local
// inference servers do not check it.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	defaults := DefaultEmbedderConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	apiKey := cfg.APIKey
	cfg.APIKey = ""
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		if raw, err := os.ReadFile(apiKeySecretPath); err == nil {
			apiKey = strings.TrimSpace(string(raw))
			cfg.Logger.Info("read embedding API key from container secret")
		}
	}
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, errors.New("vector: no API key found and no custom base URL configured")
		}
		apiKey = "not-needed"
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &OpenAIEmbedder{
		cfg:     cfg,
		key:     memguard.NewEnclave([]byte(apiKey)),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		log:     cfg.Logger.With(slog.String("component", "embedder")),
	}, nil
}

// openaiClient builds the API client on first use, unsealing the key
// just long enough to construct it.
func (e *OpenAIEmbedder) openaiClient() (*openai.Client, error) {
	e.initOnce.Do(func() {
		buf, err := e.key.Open()
		if err != nil {
			e.initErr = fmt.Errorf("vector: unseal API key: %w", err)
			return
		}
		defer buf.Destroy()

		clientCfg := openai.DefaultConfig(string(buf.Bytes()))
		if e.cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimSuffix(e.cfg.BaseURL, "/")
		}
		e.client = openai.NewClientWithConfig(clientCfg)
	})
	return e.client, e.initErr
}

// EmbedBatch embeds texts in rate-limited batches and returns one
// vector per input, in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client, err := e.openaiClient()
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("vector: rate limit wait: %w", err)
		}

		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.cfg.Model),
		})
		if err != nil {
			return nil, fmt.Errorf("vector: create embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("vector: embedding count mismatch: sent %d texts, got %d vectors",
				len(batch), len(resp.Data))
		}

		// The API may reorder; Index restores input order.
		ordered := make([]openai.Embedding, len(resp.Data))
		copy(ordered, resp.Data)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
		for _, d := range ordered {
			if e.cfg.Dimensions > 0 && len(d.Embedding) != e.cfg.Dimensions {
				return nil, fmt.Errorf("vector: model returned %d dimensions, expected %d",
					len(d.Embedding), e.cfg.Dimensions)
			}
			vectors = append(vectors, d.Embedding)
		}

		e.log.Debug("embedded batch",
			slog.Int("texts", len(batch)),
			slog.String("model", e.cfg.Model))
	}
	return vectors, nil
}
