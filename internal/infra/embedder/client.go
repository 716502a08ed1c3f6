package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co"
	// maxBatchTokens keeps each request comfortably under hosted input caps.
	maxBatchTokens = 8000
)

// Client requests sentence embeddings from a hosted feature-extraction
// endpoint. Inputs are batched by an estimated token budget so oversized
// forums do not blow a single request.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	dim        int
	encoder    *tiktoken.Tiktoken
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient constructs the embedding client. dim is the dimension the model
// produces; responses with a different dimension are rejected.
func NewClient(baseURL, model, apiKey string, dim int, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("embedding model cannot be empty")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("init token encoder: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		dim:     dim,
		encoder: encoder,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "embedder.client"),
	}, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var (
		out         [][]float32
		batch       []string
		batchTokens int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vectors, err := c.embedBatch(ctx, batch)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return apperrors.Wrap("embedding_error", "embedding result count mismatch", nil)
		}
		out = append(out, vectors...)
		batch = batch[:0]
		batchTokens = 0
		return nil
	}

	for _, text := range texts {
		tokens := len(c.encoder.Encode(text, nil, nil))
		if tokens > maxBatchTokens {
			return nil, apperrors.Wrap("invalid_input", fmt.Sprintf("text too large to embed: estimated tokens=%d", tokens), nil)
		}
		if batchTokens+tokens > maxBatchTokens && len(batch) > 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, text)
		batchTokens += tokens
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]any{"inputs": batch})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}
	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var vectors [][]float32
	if err := json.Unmarshal(body, &vectors); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	for _, vector := range vectors {
		if c.dim > 0 && len(vector) != c.dim {
			return nil, apperrors.Wrap("dimension_mismatch", fmt.Sprintf("model returned dimension %d, expected %d", len(vector), c.dim), nil)
		}
	}
	return vectors, nil
}

var _ domain.Embedder = (*Client)(nil)
