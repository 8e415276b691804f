package usecase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/ports"
)

const (
	corpusOrigin     = "NHS"
	upsertBatchSize  = 50
	maxCorpusLineLen = 16 << 20
)

// IndexCorpusUseCase loads a JSONL corpus of NHS page sections into the
// vector index. Each section's chunks are embedded together so every chunk
// vector carries the context of its page section.
type IndexCorpusUseCase struct {
	storage   ports.ObjectStorage
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
	namespace string
	logger    *slog.Logger
}

func NewIndexCorpusUseCase(
	storage ports.ObjectStorage,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	namespace string,
	logger *slog.Logger,
) *IndexCorpusUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexCorpusUseCase{
		storage:   storage,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		namespace: namespace,
		logger:    logger,
	}
}

type indexManifest struct {
	Corpus    string             `json:"corpus"`
	IndexedAt time.Time          `json:"indexed_at"`
	Report    domain.IndexReport `json:"report"`
}

func (uc *IndexCorpusUseCase) IndexCorpus(ctx context.Context, corpusKey string) (*domain.IndexReport, error) {
	corpusKey = strings.TrimSpace(corpusKey)
	if corpusKey == "" {
		return nil, domain.NewError(domain.ErrValidation, "index corpus", "corpus key must not be empty")
	}

	sections, err := uc.readCorpus(ctx, corpusKey)
	if err != nil {
		return nil, err
	}

	report := &domain.IndexReport{Namespace: uc.namespace}
	for _, section := range sections {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if strings.TrimSpace(section.ID) == "" || strings.TrimSpace(section.Text) == "" {
			report.Skipped++
			uc.logger.Warn("corpus_section_skipped", "section_id", section.ID, "reason", "missing id or text")
			continue
		}

		records, err := uc.buildRecords(ctx, section)
		if err != nil {
			return report, err
		}
		if err := uc.upsert(ctx, records); err != nil {
			return report, err
		}

		report.Sections++
		report.Chunks += len(records)
		for _, rec := range records {
			report.IDs = append(report.IDs, rec.ID)
		}
		uc.logger.Info("corpus_section_indexed", "section_id", section.ID, "chunks", len(records))
	}

	if err := uc.saveManifest(ctx, corpusKey, report); err != nil {
		return report, err
	}
	return report, nil
}

func (uc *IndexCorpusUseCase) readCorpus(ctx context.Context, corpusKey string) ([]domain.CorpusSection, error) {
	rc, err := uc.storage.Open(ctx, corpusKey)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCorpusLineLen)

	var sections []domain.CorpusSection
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var section domain.CorpusSection
		if err := json.Unmarshal(raw, &section); err != nil {
			return nil, domain.WrapError(domain.ErrValidation, fmt.Sprintf("parse corpus line %d", line), err)
		}
		sections = append(sections, section)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return sections, nil
}

func (uc *IndexCorpusUseCase) buildRecords(ctx context.Context, section domain.CorpusSection) ([]domain.IndexRecord, error) {
	chunks := uc.chunker.Split(section.Text)
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors, err := uc.embedder.EmbedDocument(ctx, chunks)
	if err != nil {
		return nil, wrapStage(domain.ErrRetrieval, "embed section "+section.ID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrRetrieval,
			"embed section "+section.ID,
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)),
		)
	}

	records := make([]domain.IndexRecord, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, domain.IndexRecord{
			ID:        fmt.Sprintf("%s__Part_%d", section.ID, i+1),
			Vector:    vectors[i],
			Text:      chunk,
			Title:     strings.TrimSpace(section.Title),
			URL:       strings.TrimSpace(section.URL),
			SectionID: section.ID,
			Origin:    corpusOrigin,
		})
	}
	return records, nil
}

func (uc *IndexCorpusUseCase) upsert(ctx context.Context, records []domain.IndexRecord) error {
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		if err := uc.index.Upsert(ctx, records[start:end]); err != nil {
			return wrapStage(domain.ErrRetrieval, "upsert vectors", err)
		}
	}
	return nil
}

func (uc *IndexCorpusUseCase) saveManifest(ctx context.Context, corpusKey string, report *domain.IndexReport) error {
	body, err := json.MarshalIndent(indexManifest{
		Corpus:    corpusKey,
		IndexedAt: time.Now().UTC(),
		Report:    *report,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index manifest: %w", err)
	}
	if err := uc.storage.Save(ctx, manifestKey(corpusKey), bytes.NewReader(body)); err != nil {
		return fmt.Errorf("save index manifest: %w", err)
	}
	return nil
}

func manifestKey(corpusKey string) string {
	return strings.TrimSuffix(corpusKey, ".jsonl") + ".manifest.json"
}
