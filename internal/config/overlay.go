package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

// overlayFile is the optional YAML file that overrides the model catalog and
// the user-visible text.
type overlayFile struct {
	Models       []string            `yaml:"models"`
	DefaultModel string              `yaml:"default_model"`
	Prompt       Prompt              `yaml:"prompt"`
	Messages     domain.UserMessages `yaml:"messages"`
	RAG          struct {
		DefaultResultCount int      `yaml:"default_result_count"`
		MaxResultCount     int      `yaml:"max_result_count"`
		ScoreFloor         *float64 `yaml:"score_floor"`
		MaxContextChars    int      `yaml:"max_context_chars"`
	} `yaml:"rag"`
}

func applyOverlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return applyOverlay(cfg, data)
}

func applyOverlay(cfg *Config, data []byte) error {
	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse overlay: %w", err)
	}

	if len(overlay.Models) > 0 {
		cfg.Models = splitList(strings.Join(overlay.Models, ","))
	}
	setIfPresent(&cfg.ModelID, overlay.DefaultModel)
	setIfPresent(&cfg.Prompt.ContextDescription, overlay.Prompt.ContextDescription)
	setIfPresent(&cfg.Prompt.NotFoundMessage, overlay.Prompt.NotFoundMessage)
	setIfPresent(&cfg.Messages.NotFound, overlay.Messages.NotFound)
	setIfPresent(&cfg.Messages.Validation, overlay.Messages.Validation)
	setIfPresent(&cfg.Messages.Retrieval, overlay.Messages.Retrieval)
	setIfPresent(&cfg.Messages.Generation, overlay.Messages.Generation)
	setIfPresent(&cfg.Messages.Configuration, overlay.Messages.Configuration)

	if overlay.RAG.DefaultResultCount > 0 {
		cfg.RAG.DefaultResultCount = overlay.RAG.DefaultResultCount
	}
	if overlay.RAG.MaxResultCount > 0 {
		cfg.RAG.MaxResultCount = overlay.RAG.MaxResultCount
	}
	if overlay.RAG.ScoreFloor != nil {
		cfg.RAG.ScoreFloor = *overlay.RAG.ScoreFloor
	}
	if overlay.RAG.MaxContextChars > 0 {
		cfg.RAG.MaxContextChars = overlay.RAG.MaxContextChars
	}
	return nil
}

func setIfPresent(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
