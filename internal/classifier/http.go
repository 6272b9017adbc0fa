package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nao1215/toxguard/internal/model"
)

const (
	// DefaultTopK is the number of labels requested per text.
	DefaultTopK = 6

	// DefaultHTTPTimeout bounds one inference request.
	DefaultHTTPTimeout = 30 * time.Second

	// maxResponseBytes caps the size of an inference response body.
	maxResponseBytes = 8 << 20
)

// HTTP classifies texts with a remote text-classification endpoint that
// speaks the Hugging Face inference protocol:
//
//	POST {"inputs": ["..."], "parameters": {"top_k": 6, "function_to_apply": "sigmoid"}}
//	200  [[{"label": "toxic", "score": 0.97}, ...], ...]
type HTTP struct {
	endpoint string
	token    string
	topK     int
	client   *http.Client
}

// HTTPOption configures an HTTP backend.
type HTTPOption func(*HTTP)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithAPIToken sets a bearer token.
func WithAPIToken(token string) HTTPOption {
	return func(h *HTTP) {
		h.token = token
	}
}

// WithTopK sets the number of labels requested per text.
func WithTopK(k int) HTTPOption {
	return func(h *HTTP) {
		if k > 0 {
			h.topK = k
		}
	}
}

// NewHTTP creates a backend for endpoint.
func NewHTTP(endpoint string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		endpoint: endpoint,
		topK:     DefaultTopK,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return h
}

// Name implements Backend.
func (h *HTTP) Name() string {
	return "http"
}

type inferenceRequest struct {
	Inputs     []string            `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

type inferenceParameters struct {
	TopK            int    `json:"top_k"`
	FunctionToApply string `json:"function_to_apply"`
}

// Classify implements Backend.
func (h *HTTP) Classify(ctx context.Context, texts []string) ([][]model.LabelScore, error) {
	body, err := json.Marshal(inferenceRequest{
		Inputs:     texts,
		Parameters: inferenceParameters{TopK: h.topK, FunctionToApply: "sigmoid"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	return decodeInference(data, len(texts))
}

// decodeInference accepts both the batched shape [[...], [...]] and the
// flat shape [...] some servers return for a single input.
func decodeInference(data []byte, n int) ([][]model.LabelScore, error) {
	var batched [][]model.LabelScore
	if err := json.Unmarshal(data, &batched); err == nil {
		return batched, nil
	}
	var flat []model.LabelScore
	if err := json.Unmarshal(data, &flat); err == nil && n == 1 {
		return [][]model.LabelScore{flat}, nil
	}
	return nil, ErrUnexpectedResponse
}

// Preflight sends a one-item probe and expects a decodable answer.
func (h *HTTP) Preflight(ctx context.Context) error {
	if h.endpoint == "" {
		return fmt.Errorf("%w: no endpoint configured", ErrClassifierUnavailable)
	}
	_, err := h.Classify(ctx, []string{"preflight probe"})
	return err
}
