package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

func TestModelsCmd_ListsCatalogWithDefault(t *testing.T) {
	cleanup := setupTestServices(&mockAnswerService{}, nil)
	defer cleanup()

	out, err := runRoot("models")

	require.NoError(t, err)
	assert.Contains(t, out, "gemini-2.5-flash (default)\n")
	assert.Contains(t, out, "gemini-2.5-flash-lite\n")
	assert.Contains(t, out, "gemini-2.5-pro\n")
}

func TestIndexCmd_PrintsReport(t *testing.T) {
	indexer := &mockIndexer{report: &domain.IndexReport{
		Sections:  2,
		Chunks:    5,
		Skipped:   1,
		Namespace: "nhs_guidelines_voyage_3_large",
	}}
	cleanup := setupTestServices(&mockAnswerService{}, indexer)
	defer cleanup()

	out, err := runRoot("index", "corpus/nhs.jsonl")

	require.NoError(t, err)
	assert.Equal(t, "corpus/nhs.jsonl", indexer.key)
	assert.Contains(t, out, `Indexed 2 sections as 5 chunks into namespace "nhs_guidelines_voyage_3_large" (1 skipped)`)
}

func TestIndexCmd_JSON(t *testing.T) {
	indexer := &mockIndexer{report: &domain.IndexReport{Sections: 1, Chunks: 1, Namespace: "ns"}}
	cleanup := setupTestServices(&mockAnswerService{}, indexer)
	defer cleanup()

	out, err := runRoot("index", "--json", "nhs.jsonl")

	require.NoError(t, err)
	assert.Contains(t, out, `"chunks": 1`)
}

func TestIndexCmd_Error(t *testing.T) {
	cleanup := setupTestServices(&mockAnswerService{}, &mockIndexer{err: errBoom})
	defer cleanup()

	_, err := runRoot("index", "nhs.jsonl")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index failed")
}

func TestMCPCmd_RequiresServices(t *testing.T) {
	cleanup := setupTestServices(&mockAnswerService{}, nil)
	defer cleanup()
	answerService = nil

	_, err := runRoot("mcp")

	require.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, err := runRoot("version")

	require.NoError(t, err)
	assert.Contains(t, out, "nhsrag ")
}
