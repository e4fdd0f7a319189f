// Package qdrant implements the memory.VectorStore contract against the
// Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folioworks/portfolio-assistant/internal/memory"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

const (
	payloadRecordIDKey = "_pa_record_id"
	maxErrorBodyBytes  = 1024
)

// Point IDs must be UUIDs on the Qdrant side; record IDs are mapped
// deterministically into this namespace.
var pointIDNamespace = uuid.MustParse("7c9e3a52-91d4-4b8f-a6c0-2de1f0b4a9e3")

// Config holds Qdrant connection settings.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	VectorDim  int
}

// Client is an HTTP client for one Qdrant collection.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// New creates a Qdrant client. It does not contact the server; call
// EnsureCollection during startup.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With("component", "qdrant"),
	}, nil
}

// EnsureCollection creates the collection if it does not exist.
func (c *Client) EnsureCollection(ctx context.Context) error {
	var exists struct {
		Exists bool `json:"exists"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.collectionPath("/exists"), nil, &exists); err != nil {
		return err
	}
	if exists.Exists {
		return nil
	}

	req := map[string]any{
		"vectors": map[string]any{
			"size":     c.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	if err := c.doJSON(ctx, http.MethodPut, c.collectionPath(""), req, nil); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", c.cfg.Collection, err)
	}
	c.log.Info("qdrant collection created", "collection", c.cfg.Collection, "vector_dim", c.cfg.VectorDim)
	return nil
}

// Upsert writes one point with its payload.
func (c *Client) Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("point id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("point %q has an empty vector", id)
	}
	if c.cfg.VectorDim > 0 && len(vector) != c.cfg.VectorDim {
		return fmt.Errorf("point %q dimension mismatch: expected=%d got=%d", id, c.cfg.VectorDim, len(vector))
	}

	body := clonePayload(payload)
	body[payloadRecordIDKey] = id

	req := map[string]any{
		"points": []map[string]any{
			{
				"id":      c.pointID(id),
				"vector":  vector,
				"payload": body,
			},
		},
	}
	return c.doJSON(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), req, nil)
}

// Search runs nearest-neighbor search with a payload filter and score
// threshold. Results come back in descending score order.
func (c *Client) Search(ctx context.Context, vector []float32, filter memory.Filter, limit int, scoreThreshold float64) ([]memory.ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}
	if c.cfg.VectorDim > 0 && len(vector) != c.cfg.VectorDim {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", c.cfg.VectorDim, len(vector))
	}
	if limit <= 0 {
		limit = 10
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if scoreThreshold > 0 {
		req["score_threshold"] = scoreThreshold
	}
	if f := translateFilter(filter); f != nil {
		req["filter"] = f
	}

	var raw []searchResultItem
	if err := c.doJSON(ctx, http.MethodPost, c.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, err
	}

	out := make([]memory.ScoredPoint, 0, len(raw))
	for _, item := range raw {
		id := extractRecordID(item)
		if id == "" {
			continue
		}
		out = append(out, memory.ScoredPoint{
			ID:      id,
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return out, nil
}

// translateFilter converts the narrow memory.Filter into Qdrant filter
// clauses. Nil means no filtering.
func translateFilter(filter memory.Filter) map[string]any {
	var must, mustNot []map[string]any
	for key, value := range filter.Match {
		must = append(must, matchClause(key, value))
	}
	for key, value := range filter.Exclude {
		mustNot = append(mustNot, matchClause(key, value))
	}
	if must == nil && mustNot == nil {
		return nil
	}

	out := map[string]any{}
	if must != nil {
		out["must"] = must
	}
	if mustNot != nil {
		out["must_not"] = mustNot
	}
	return out
}

func matchClause(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func (c *Client) pointID(recordID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(recordID)).String()
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + c.cfg.Collection + suffix
}

func extractRecordID(item searchResultItem) string {
	if v, ok := item.Payload[payloadRecordIDKey].(string); ok && v != "" {
		return v
	}
	// Fall back to the raw point ID for points written by other writers.
	var s string
	if err := json.Unmarshal(item.ID, &s); err == nil {
		return s
	}
	return strings.Trim(string(item.ID), `"`)
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("qdrant %s %s: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if result == nil {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode qdrant response: %w", err)
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("failed to decode qdrant result: %w", err)
	}
	return nil
}
