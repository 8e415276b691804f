package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

const testCorpus = `{"id":"adhd-adults__Overview","title":"ADHD in adults","url":"https://www.nhs.uk/conditions/adhd-adults/","text":"First paragraph.\n\nSecond paragraph."}

{"id":"","title":"Broken","url":"https://www.nhs.uk/x/","text":"no id"}
{"id":"insomnia__Overview","title":"Insomnia","url":"https://www.nhs.uk/conditions/insomnia/","text":"Insomnia means trouble sleeping."}
`

func TestIndexCorpusUpsertsChunksWithMetadata(t *testing.T) {
	storage := newStorageFake()
	storage.files["nhs.jsonl"] = []byte(testCorpus)
	embedder := &embedderFake{}
	index := &indexFake{}
	uc := NewIndexCorpusUseCase(storage, splitterFake{}, embedder, index, "nhs_guidelines_voyage_3_large", testLogger())

	report, err := uc.IndexCorpus(context.Background(), "nhs.jsonl")
	if err != nil {
		t.Fatalf("IndexCorpus() error = %v", err)
	}
	if report.Sections != 2 || report.Chunks != 3 || report.Skipped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if embedder.docCalls != 2 || len(embedder.docChunks[0]) != 2 {
		t.Fatalf("expected one contextual embedding call per section, got %d", embedder.docCalls)
	}

	first := index.upserts[0]
	if first[0].ID != "adhd-adults__Overview__Part_1" || first[1].ID != "adhd-adults__Overview__Part_2" {
		t.Fatalf("unexpected chunk ids %s %s", first[0].ID, first[1].ID)
	}
	if first[1].Text != "Second paragraph." || first[1].URL != "https://www.nhs.uk/conditions/adhd-adults/" || first[1].Origin != "NHS" {
		t.Fatalf("unexpected record %+v", first[1])
	}
	if first[0].SectionID != "adhd-adults__Overview" {
		t.Fatalf("expected section id, got %q", first[0].SectionID)
	}

	raw, ok := storage.files["nhs.manifest.json"]
	if !ok {
		t.Fatalf("expected manifest to be saved")
	}
	var manifest indexManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Report.Chunks != 3 || manifest.Corpus != "nhs.jsonl" {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
}

func TestIndexCorpusReportsInvalidLine(t *testing.T) {
	storage := newStorageFake()
	storage.files["bad.jsonl"] = []byte("{\"id\":\"a\",\"text\":\"t\"}\n{not json}\n")
	uc := NewIndexCorpusUseCase(storage, splitterFake{}, &embedderFake{}, &indexFake{}, "ns", testLogger())

	_, err := uc.IndexCorpus(context.Background(), "bad.jsonl")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "line 2") {
		t.Fatalf("expected line number in %q", got)
	}
}

func TestIndexCorpusEmbeddingFailure(t *testing.T) {
	storage := newStorageFake()
	storage.files["nhs.jsonl"] = []byte(testCorpus)
	index := &indexFake{}
	uc := NewIndexCorpusUseCase(storage, splitterFake{}, &embedderFake{err: errors.New("quota")}, index, "ns", testLogger())

	if _, err := uc.IndexCorpus(context.Background(), "nhs.jsonl"); !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
	if len(index.upserts) != 0 {
		t.Fatalf("expected no upserts")
	}
}

func TestIndexCorpusRejectsEmptyKey(t *testing.T) {
	uc := NewIndexCorpusUseCase(newStorageFake(), splitterFake{}, &embedderFake{}, &indexFake{}, "ns", testLogger())
	if _, err := uc.IndexCorpus(context.Background(), " "); !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
