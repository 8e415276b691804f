package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/httpapi"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/resilience"
)

// Client is the self-hosted alternative to the hosted index. The namespace
// maps to a collection and chunk ids map to deterministic point UUIDs, so
// re-indexing a section overwrites its points.
type Client struct {
	http       *httpapi.Client
	collection string

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, apiKey, collection string, timeout time.Duration, executor *resilience.Executor) *Client {
	return &Client{
		http: httpapi.New("qdrant", baseURL, timeout,
			httpapi.WithHeader("api-key", apiKey),
			httpapi.WithExecutor(executor),
		),
		collection: collection,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(records[0].Vector)); err != nil {
		return err
	}

	points := make([]point, 0, len(records))
	for _, rec := range records {
		points = append(points, point{
			ID:     PointID(rec.ID),
			Vector: rec.Vector,
			Payload: map[string]any{
				"chunk_id":    rec.ID,
				"original_id": rec.SectionID,
				"url":         rec.URL,
				"document":    rec.Text,
				"source":      rec.Origin,
				"title":       rec.Title,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	if err := c.http.DoJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert"); err != nil {
		return domain.WrapError(domain.ErrRetrieval, "qdrant upsert", err)
	}
	return nil
}

func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	err := c.http.PostJSON(ctx, path, map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}, &resp, "search")
	if err != nil {
		var statusErr *httpapi.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, domain.WrapError(domain.ErrRetrieval, "qdrant search", fmt.Errorf("collection %q does not exist: %w", c.collection, err))
		}
		return nil, domain.WrapError(domain.ErrRetrieval, "qdrant search", err)
	}

	out := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, domain.Match{
			ID:        getStringPayload(r.Payload, "chunk_id"),
			Score:     r.Score,
			Text:      getStringPayload(r.Payload, "document"),
			Title:     getStringPayload(r.Payload, "title"),
			URL:       getStringPayload(r.Payload, "url"),
			SectionID: getStringPayload(r.Payload, "original_id"),
			Origin:    getStringPayload(r.Payload, "source"),
		})
	}
	return out, nil
}

// PointID derives the stable point UUID of a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.http.DoJSON(ctx, http.MethodPut, "/collections/"+c.collection, reqBody, nil, "ensure collection")

	// 409 if it already exists, depending on the qdrant version.
	var statusErr *httpapi.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return domain.WrapError(domain.ErrRetrieval, "qdrant ensure collection", err)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
