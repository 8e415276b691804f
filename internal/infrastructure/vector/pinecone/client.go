package pinecone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/httpapi"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/resilience"
)

const apiVersion = "2025-04"

// Metadata keys written by the indexer and read back on query.
const (
	metaOriginalID = "original_id"
	metaURL        = "url"
	metaDocument   = "document"
	metaSource     = "source"
	metaTitle      = "title"
)

type Config struct {
	APIKey     string
	ControlURL string
	IndexName  string
	// IndexHost skips host resolution when set.
	IndexHost string
	Namespace string
	Timeout   time.Duration
}

// Client queries and upserts one namespace of a Pinecone serverless index.
type Client struct {
	cfg      Config
	executor *resilience.Executor
	control  *httpapi.Client

	hostMu sync.Mutex
	data   *httpapi.Client
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.ControlURL == "" {
		cfg.ControlURL = "https://api.pinecone.io"
	}
	c := &Client{cfg: cfg, executor: executor}
	c.control = httpapi.New("pinecone", cfg.ControlURL, cfg.Timeout, c.options()...)
	if host := strings.TrimSpace(cfg.IndexHost); host != "" {
		c.data = httpapi.New("pinecone", normalizeHost(host), cfg.Timeout, c.options()...)
	}
	return c
}

func (c *Client) options() []httpapi.Option {
	return []httpapi.Option{
		httpapi.WithHeader("Api-Key", c.cfg.APIKey),
		httpapi.WithHeader("X-Pinecone-API-Version", apiVersion),
		httpapi.WithExecutor(c.executor),
	}
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	data, err := c.dataClient(ctx)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	err = data.PostJSON(ctx, "/query", queryRequest{
		Vector:          vector,
		TopK:            topK,
		Namespace:       c.cfg.Namespace,
		IncludeMetadata: true,
	}, &resp, "query")
	if err != nil {
		return nil, wrapError("pinecone query", err)
	}

	out := make([]domain.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, domain.Match{
			ID:        m.ID,
			Score:     m.Score,
			Text:      stringMeta(m.Metadata, metaDocument),
			Title:     stringMeta(m.Metadata, metaTitle),
			URL:       stringMeta(m.Metadata, metaURL),
			SectionID: stringMeta(m.Metadata, metaOriginalID),
			Origin:    stringMeta(m.Metadata, metaSource),
		})
	}
	return out, nil
}

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata"`
}

func (c *Client) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	data, err := c.dataClient(ctx)
	if err != nil {
		return err
	}

	vectors := make([]vector, 0, len(records))
	for _, rec := range records {
		vectors = append(vectors, vector{
			ID:     rec.ID,
			Values: rec.Vector,
			Metadata: map[string]any{
				metaOriginalID: rec.SectionID,
				metaURL:        rec.URL,
				metaDocument:   rec.Text,
				metaSource:     rec.Origin,
				metaTitle:      rec.Title,
			},
		})
	}

	var resp struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	err = data.PostJSON(ctx, "/vectors/upsert", map[string]any{
		"vectors":   vectors,
		"namespace": c.cfg.Namespace,
	}, &resp, "upsert")
	if err != nil {
		return wrapError("pinecone upsert", err)
	}
	if resp.UpsertedCount != 0 && resp.UpsertedCount != len(records) {
		return domain.NewError(domain.ErrRetrieval, "pinecone upsert",
			fmt.Sprintf("upserted %d of %d vectors", resp.UpsertedCount, len(records)))
	}
	return nil
}

// dataClient resolves the index host once through the control plane.
func (c *Client) dataClient(ctx context.Context) (*httpapi.Client, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, domain.NewError(domain.ErrConfiguration, "pinecone", "PINECONE_API_KEY is not set")
	}

	c.hostMu.Lock()
	defer c.hostMu.Unlock()
	if c.data != nil {
		return c.data, nil
	}
	if strings.TrimSpace(c.cfg.IndexName) == "" {
		return nil, domain.NewError(domain.ErrConfiguration, "pinecone", "index name is not set")
	}

	var desc struct {
		Host   string `json:"host"`
		Status struct {
			Ready bool `json:"ready"`
		} `json:"status"`
	}
	if err := c.control.GetJSON(ctx, "/indexes/"+c.cfg.IndexName, &desc, "describe index"); err != nil {
		return nil, wrapError("pinecone describe index", err)
	}
	if strings.TrimSpace(desc.Host) == "" {
		return nil, domain.WrapError(domain.ErrRetrieval, "pinecone describe index", errors.New("index host is empty"))
	}
	c.data = httpapi.New("pinecone", normalizeHost(desc.Host), c.cfg.Timeout, c.options()...)
	return c.data, nil
}

func wrapError(operation string, err error) error {
	if kind := httpapi.StatusKind(err); kind != nil {
		return domain.WrapError(kind, operation, err)
	}
	return domain.WrapError(domain.ErrRetrieval, operation, err)
}

func normalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

func stringMeta(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
