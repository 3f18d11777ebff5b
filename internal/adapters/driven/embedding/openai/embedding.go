// Package openai provides an embedding service adapter using OpenAI API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
	"golang.org/x/time/rate"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

var loaderOnce sync.Once

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokensPerText is the per-input token ceiling.
	DefaultMaxTokensPerText = 8192

	// DefaultMaxBatchSize is the most inputs allowed in one API call.
	DefaultMaxBatchSize = 2048

	// DefaultMaxBatchTokens is the total token ceiling per API call.
	DefaultMaxBatchTokens = 300000

	// defaultRequestsPerSecond paces API calls during bulk sync.
	defaultRequestsPerSecond = 5

	// maxRetries bounds retry attempts on 429 and 5xx responses.
	maxRetries = 4
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// MaxTokensPerText caps tokens per input (default: 8192).
	MaxTokensPerText int

	// MaxBatchSize caps inputs per API call (default: 2048).
	MaxBatchSize int

	// MaxBatchTokens caps total tokens per API call (default: 300000).
	MaxBatchTokens int

	// RequestsPerSecond paces API calls (default: 5). Zero uses the
	// default; negative disables pacing.
	RequestsPerSecond float64
}

// EmbeddingService generates embeddings using OpenAI API. Token budgets
// are enforced locally with the cl100k_base tokenizer before any
// request is sent, so over-budget inputs fail fast instead of burning a
// rate-limited round trip.
type EmbeddingService struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int

	maxTokensPerText int
	maxBatchSize     int
	maxBatchTokens   int

	encoder *tiktoken.Tiktoken
	limiter *rate.Limiter
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokensPerText == 0 {
		cfg.MaxTokensPerText = DefaultMaxTokensPerText
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.MaxBatchTokens == 0 {
		cfg.MaxBatchTokens = DefaultMaxBatchTokens
	}

	// Determine dimensions
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536 // Default fallback
		}
	}

	// All current OpenAI embedding models use cl100k_base. The offline
	// loader keeps the tokenizer dictionary out of the network path.
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("openai: loading tokenizer: %w", err)
	}

	var limiter *rate.Limiter
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = defaultRequestsPerSecond
	}
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &EmbeddingService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:          cfg.BaseURL,
		apiKey:           cfg.APIKey,
		model:            cfg.Model,
		dimensions:       dimensions,
		maxTokensPerText: cfg.MaxTokensPerText,
		maxBatchSize:     cfg.MaxBatchSize,
		maxBatchTokens:   cfg.MaxBatchTokens,
		encoder:          encoder,
		limiter:          limiter,
	}, nil
}

// CountTokens returns the cl100k_base token count for a text.
func (s *EmbeddingService) CountTokens(text string) int {
	return len(s.encoder.Encode(text, nil, nil))
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts efficiently.
// The batch is validated against all three budgets before the request
// is sent.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.checkBudgets(texts); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("openai: rate limiter: %w", err)
		}
	}

	reqBody := embeddingRequest{
		Model: s.model,
		Input: texts,
	}

	// Only include dimensions for text-embedding-3-* models
	if s.model == "text-embedding-3-small" || s.model == "text-embedding-3-large" {
		if s.dimensions > 0 {
			reqBody.Dimensions = s.dimensions
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var embedResp embeddingResponse
	operation := func() error {
		resp, body, err := s.post(ctx, jsonBody)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%w: openai status %d", domain.ErrRateLimited, resp.StatusCode)
		}

		if err := json.Unmarshal(body, &embedResp); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		if embedResp.Error != nil {
			return backoff.Permanent(fmt.Errorf("openai error: %s", embedResp.Error.Message))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(body)))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	// Convert float64 to float32 and order by index
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		embeddings[data.Index] = embedding
	}

	return embeddings, nil
}

// checkBudgets verifies the batch against size and token ceilings.
func (s *EmbeddingService) checkBudgets(texts []string) error {
	if len(texts) > s.maxBatchSize {
		return fmt.Errorf("%w: %d inputs exceeds batch size %d", domain.ErrBatchBudget, len(texts), s.maxBatchSize)
	}
	total := 0
	for i, text := range texts {
		n := s.CountTokens(text)
		if n > s.maxTokensPerText {
			return fmt.Errorf("%w: input %d has %d tokens, limit %d", domain.ErrTokenBudget, i, n, s.maxTokensPerText)
		}
		total += n
	}
	if total > s.maxBatchTokens {
		return fmt.Errorf("%w: batch has %d tokens, limit %d", domain.ErrBatchBudget, total, s.maxBatchTokens)
	}
	return nil
}

func (s *EmbeddingService) post(ctx context.Context, jsonBody []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.baseURL+"/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /models endpoint.
// This is a lightweight check that validates the API key without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("openai: failed to create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("openai: API returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
