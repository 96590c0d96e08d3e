// Package embedclient is the transport for the engine's one external
// wire protocol: the embedding capability. It is a thin JSON-over-HTTP
// client (configurable timeout, connection pooling), classifying
// failures into the engine's errlog taxonomy so internal/embedbatch can
// decide whether to retry.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/errlog"
)

// EmbeddingKind is the request's document-vs-query discriminator.
type EmbeddingKind string

const (
	KindDocument EmbeddingKind = "document"
	KindQuery    EmbeddingKind = "query"
)

// Client calls the external embedding capability over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

// Config configures a Client.
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// DefaultTimeout bounds one embedding request end to end.
const DefaultTimeout = 120 * time.Second

// New builds a Client. endpoint and model are required; Timeout defaults
// to DefaultTimeout when zero.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     10 * time.Second,
			},
		},
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
	}
}

type embedRequest struct {
	Model                  string        `json:"model"`
	Input                  []string      `json:"input"`
	Kind                   EmbeddingKind `json:"kind"`
	QueryInstructionPrefix string        `json:"query_instruction_prefix,omitempty"`
}

type embedResponse struct {
	Embeddings [][]byte `json:"embeddings"`
	Dimension  int      `json:"dimension"`
	Precision  string   `json:"precision"`
	Error      string   `json:"error,omitempty"`
}

// Result is one Embed call's response: a list of byte-blobs in input
// order plus the dimension/precision the service actually used.
type Result struct {
	Embeddings [][]byte
	Dimension  int
	Precision  string
}

// Embed sends one batch request to the embedding capability. documents
// must already respect the caller's character/count budget; this
// client makes exactly one HTTP request per call. The capability may
// batch internally, but it is called as one request per batch here.
func (c *Client) Embed(ctx context.Context, documents []string, kind EmbeddingKind, queryInstructionPrefix string) (*Result, error) {
	if len(documents) == 0 {
		return &Result{}, nil
	}

	reqBody := embedRequest{
		Model:                  c.model,
		Input:                  documents,
		Kind:                   kind,
		QueryInstructionPrefix: queryInstructionPrefix,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errlog.New(errlog.CategoryEmbeddingPermanent, "embedclient: marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errlog.New(errlog.CategoryEmbeddingPermanent, "embedclient: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errlog.New(errlog.CategoryEmbeddingTransient, "embedclient: request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errlog.New(errlog.CategoryEmbeddingTransient, "embedclient: read response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errlog.New(errlog.CategoryEmbeddingTransient,
			fmt.Sprintf("embedclient: transient status %d", resp.StatusCode), fmt.Errorf("%s", string(body)))
	}
	if resp.StatusCode >= 400 {
		return nil, errlog.New(errlog.CategoryEmbeddingPermanent,
			fmt.Sprintf("embedclient: permanent status %d", resp.StatusCode), fmt.Errorf("%s", string(body)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errlog.New(errlog.CategoryEmbeddingPermanent, "embedclient: decode response", err)
	}
	if parsed.Error != "" {
		return nil, errlog.New(errlog.CategoryEmbeddingPermanent, "embedclient: service error", fmt.Errorf("%s", parsed.Error))
	}
	if len(parsed.Embeddings) != len(documents) {
		return nil, errlog.New(errlog.CategoryEmbeddingPermanent,
			"embedclient: response count mismatch",
			fmt.Errorf("got %d embeddings for %d documents", len(parsed.Embeddings), len(documents)))
	}

	return &Result{Embeddings: parsed.Embeddings, Dimension: parsed.Dimension, Precision: parsed.Precision}, nil
}

// Close releases pooled connections.
func (c *Client) Close() error {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
