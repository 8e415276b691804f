package voyage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/httpapi"
	"github.com/kirillkom/nhs-clinical-assistant/internal/infrastructure/resilience"
)

const (
	inputTypeQuery    = "query"
	inputTypeDocument = "document"
)

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	OutputDimension int
	Timeout         time.Duration
}

// Embedder calls the Voyage contextualized embeddings endpoint. A document is
// sent as one inner list so each chunk vector is conditioned on its siblings.
type Embedder struct {
	cfg    Config
	client *httpapi.Client
}

func New(cfg Config, executor *resilience.Executor) *Embedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.voyageai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "voyage-context-3"
	}
	return &Embedder{
		cfg: cfg,
		client: httpapi.New("voyage", cfg.BaseURL, cfg.Timeout,
			httpapi.WithHeader("Authorization", bearer(cfg.APIKey)),
			httpapi.WithExecutor(executor),
		),
	}
}

type embedRequest struct {
	Inputs          [][]string `json:"inputs"`
	Model           string     `json:"model"`
	InputType       string     `json:"input_type"`
	OutputDimension int        `json:"output_dimension,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index int `json:"index"`
		Data  []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	} `json:"data"`
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, inputTypeQuery, "embed query")
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.NewError(domain.ErrRetrieval, "voyage embed query", "empty embedding result")
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedDocument(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	vectors, err := e.embed(ctx, chunks, inputTypeDocument, "embed document")
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, domain.NewError(domain.ErrRetrieval, "voyage embed document",
			fmt.Sprintf("got %d embeddings for %d chunks", len(vectors), len(chunks)))
	}
	return vectors, nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, inputType, operation string) ([][]float32, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, domain.NewError(domain.ErrConfiguration, "voyage "+operation, "VOYAGE_API_KEY is not set")
	}

	var resp embedResponse
	err := e.client.PostJSON(ctx, "/contextualizedembeddings", embedRequest{
		Inputs:          [][]string{texts},
		Model:           e.cfg.Model,
		InputType:       inputType,
		OutputDimension: e.cfg.OutputDimension,
	}, &resp, operation)
	if err != nil {
		if kind := httpapi.StatusKind(err); kind != nil {
			return nil, domain.WrapError(kind, "voyage "+operation, err)
		}
		return nil, domain.WrapError(domain.ErrRetrieval, "voyage "+operation, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	items := resp.Data[0].Data
	out := make([][]float32, len(items))
	for i, item := range items {
		pos := item.Index
		if pos < 0 || pos >= len(out) || out[pos] != nil {
			pos = i
		}
		out[pos] = item.Embedding
	}
	return out, nil
}

func bearer(key string) string {
	if strings.TrimSpace(key) == "" {
		return ""
	}
	return "Bearer " + key
}
