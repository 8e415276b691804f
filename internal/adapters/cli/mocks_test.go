package cli

import (
	"bytes"
	"context"
	"errors"

	"github.com/kirillkom/nhs-clinical-assistant/internal/config"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

var testSources = []domain.Source{
	{Title: "ADHD in adults - Symptoms", URL: "https://www.nhs.uk/conditions/adhd-adults/symptoms/"},
	{Title: "Insomnia", URL: "https://www.nhs.uk/conditions/insomnia/"},
}

type mockAnswerService struct {
	answer    *domain.Answer
	err       error
	fragments []string
	streamErr error
	sources   []domain.Source
	noContext bool

	lastRequest domain.AnswerRequest
	answerCalls int
	streamCalls int
}

func (m *mockAnswerService) Answer(_ context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	m.lastRequest = req
	m.answerCalls++
	if m.err != nil {
		return &domain.Answer{
			Sources: []domain.Source{},
			State:   domain.StateFailed,
			Failure: domain.FailureFrom(m.err, domain.UserMessages{}),
		}, m.err
	}
	return m.answer, nil
}

func (m *mockAnswerService) Stream(_ context.Context, req domain.AnswerRequest) (*domain.AnswerStream, error) {
	m.lastRequest = req
	m.streamCalls++
	if m.err != nil {
		return nil, m.err
	}
	fragments := func(yield func(string, error) bool) {
		for _, f := range m.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if m.streamErr != nil {
			yield("", m.streamErr)
		}
	}
	return domain.NewAnswerStream("gemini-2.5-flash", m.sources, m.noContext, fragments, domain.UserMessages{}), nil
}

type mockIndexer struct {
	report *domain.IndexReport
	err    error
	key    string
}

func (m *mockIndexer) IndexCorpus(_ context.Context, corpusKey string) (*domain.IndexReport, error) {
	m.key = corpusKey
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func testCatalog() config.ModelCatalog {
	return config.Config{
		Models:  []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.5-pro"},
		ModelID: "gemini-2.5-flash",
	}.Catalog()
}

// setupTestServices installs mocks and returns a cleanup restoring globals
// and flag values.
func setupTestServices(answers *mockAnswerService, indexer *mockIndexer) func() {
	oldAnswers, oldCatalog, oldIndexer, oldMessages := answerService, modelCatalog, corpusIndexer, userMessages

	SetServices(Services{
		Answers:  answers,
		Catalog:  testCatalog(),
		Indexer:  indexer,
		Messages: domain.UserMessages{NotFound: "No relevant NHS information was found."},
	})

	return func() {
		answerService, modelCatalog, corpusIndexer, userMessages = oldAnswers, oldCatalog, oldIndexer, oldMessages
		askModel, askResultCount, askNoStream, askJSON = "", 0, false, false
		indexJSON = false
		rootCmd.SetArgs(nil)
	}
}

func runRoot(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

var errBoom = errors.New("boom")
