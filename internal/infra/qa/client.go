package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

const defaultBaseURL = "https://api-inference.huggingface.co"

// extractRequest mirrors the hosted question-answering payload.
type extractRequest struct {
	Inputs extractInputs `json:"inputs"`
}

type extractInputs struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// extractResponse captures the span returned by the inference endpoint.
// Start/End are character offsets into the submitted context, End exclusive.
type extractResponse struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

// Client performs HTTP requests against a hosted extractive-QA model. The
// model is loaded server side once; one Client is shared across a whole
// inference batch.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a QA client for the given model.
func NewClient(baseURL, model, apiKey string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("qa model cannot be empty")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Extract returns the best answer span for question within passage.
func (c *Client) Extract(ctx context.Context, question, passage string) (domain.Answer, error) {
	if strings.TrimSpace(passage) == "" {
		return domain.Answer{}, apperrors.Wrap("invalid_input", "passage cannot be empty", nil)
	}
	payload, err := json.Marshal(extractRequest{Inputs: extractInputs{Question: question, Context: passage}})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("encode qa request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.Answer{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("qa request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("read qa response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Answer{}, fmt.Errorf("qa endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Answer{}, fmt.Errorf("decode qa response: %w", err)
	}
	return domain.Answer{Text: out.Answer, Start: out.Start, End: out.End}, nil
}

var _ domain.AnswerExtractor = (*Client)(nil)
