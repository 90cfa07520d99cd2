package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/coderetrieve/internal/retry"
	"github.com/dshills/coderetrieve/pkg/types"
)

// DefaultQdrantURL is the address of a local Qdrant instance
const DefaultQdrantURL = "http://localhost:6333"

const defaultQdrantTimeout = 30 * time.Second

// QdrantStore implements VectorStore over the Qdrant REST API.
// Collections are created with cosine distance.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewQdrantStore creates a client for the Qdrant instance at baseURL
func NewQdrantStore(baseURL, apiKey string, timeout time.Duration) (*QdrantStore, error) {
	if baseURL == "" {
		baseURL = DefaultQdrantURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("qdrant: invalid url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = defaultQdrantTimeout
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// qdrantStatusError carries a non-2xx response
type qdrantStatusError struct {
	status int
	body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant: status %d: %s", e.status, e.body)
}

func (q *QdrantStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &qdrantStatusError{status: resp.StatusCode, body: string(msg)}
		// Client errors other than throttling will not succeed on retry
		if se.status >= 400 && se.status < 500 && se.status != http.StatusTooManyRequests {
			return retry.Permanent(se)
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("qdrant: decode response: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var se *qdrantStatusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// isDimensionError reports a 400 caused by a query vector of the wrong size
func isDimensionError(err error) bool {
	var se *qdrantStatusError
	return errors.As(err, &se) && se.status == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(se.body), "dimension")
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (q *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodGet, collectionPath(name), nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size != dimension {
			return fmt.Errorf("%w: %s has %d, requested %d", ErrDimensionMismatch, name, size, dimension)
		}
		return nil
	}
	if !isNotFound(err) {
		return err
	}

	create := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return q.do(ctx, http.MethodPut, collectionPath(name), create, nil)
}

type qdrantPoint struct {
	ID      string            `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload types.ChunkRecord `json:"payload"`
}

func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := validatePoints(points, 0); err != nil {
		return err
	}
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Record}
	}

	err := q.do(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", body, nil)
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return err
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type qdrantSearch struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	WithPayload    bool      `json:"with_payload"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	Filter         *struct {
		Must []qdrantCondition `json:"must"`
	} `json:"filter,omitempty"`
}

func (q *QdrantStore) Query(ctx context.Context, collection string, req QueryRequest) ([]Hit, error) {
	body := qdrantSearch{
		Vector:         req.Vector,
		Limit:          req.Limit,
		WithPayload:    true,
		ScoreThreshold: req.ScoreThreshold,
	}
	if req.Filter != nil && len(req.Filter.Must) > 0 {
		body.Filter = &struct {
			Must []qdrantCondition `json:"must"`
		}{}
		for _, m := range req.Filter.Must {
			var c qdrantCondition
			c.Key = m.Field
			c.Match.Value = m.Value
			body.Filter.Must = append(body.Filter.Must, c)
		}
	}

	var resp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, collectionPath(collection)+"/points/search", body, &resp)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if isDimensionError(err) {
		return nil, retry.Permanent(fmt.Errorf("%w: %s: %v", ErrDimensionMismatch, collection, err))
	}
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		var rec types.ChunkRecord
		// A malformed payload becomes an empty record, rejected downstream
		if len(r.Payload) > 0 && json.Unmarshal(r.Payload, &rec) != nil {
			rec = types.ChunkRecord{}
		}
		hits = append(hits, Hit{ID: pointID(r.ID), Score: r.Score, Record: rec})
	}
	return hits, nil
}

func (q *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, collectionPath(collection)+"/points/count", map[string]bool{"exact": true}, &resp)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// pointID renders a Qdrant point ID, which is either a UUID string or an unsigned integer
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return string(raw)
}

func (q *QdrantStore) Close() error {
	q.httpClient.CloseIdleConnections()
	return nil
}
