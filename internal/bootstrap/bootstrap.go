// Package bootstrap builds the service graph from configuration. It is shared
// by the API server and the intaketester CLI.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/zhouzirui/vehicle-assist/backend/internal/config"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/vehicle"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/classify"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/speech"
)

// Speech modes reported by the health endpoint.
const (
	SpeechModeMock       = "mock"
	SpeechModeVolcengine = "volcengine"
)

// Vehicles loads the YAML catalog when configured, otherwise the built-in seed.
func Vehicles(cfg config.CatalogConfig) (*vehicle.MemoryStore, error) {
	if cfg.Path == "" {
		return vehicle.NewMemoryStore(vehicle.Seed()), nil
	}
	items, err := vehicle.LoadCatalog(cfg.Path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d vehicles from %s", len(items), cfg.Path)
	return vehicle.NewMemoryStore(items), nil
}

// Transcriber returns the Volcengine client when credentials are present and
// the mock transcriber otherwise.
func Transcriber(cfg config.SpeechConfig) (speech.Transcriber, string) {
	if cfg.Enabled() {
		return speech.NewVolcengineASR(cfg.ASRConfig()), SpeechModeVolcengine
	}
	return speech.NewMockTranscriber(cfg.MockLatency, nil), SpeechModeMock
}

// Classifier builds the classifier selected by cfg.Mode. The LLM classifier
// falls back to the keyword rules when the model misbehaves.
func Classifier(ctx context.Context, cfg config.ClassifierConfig) (classify.Classifier, error) {
	switch cfg.Mode {
	case config.ClassifierRules:
		return classify.NewRuleClassifier(), nil
	case config.ClassifierLLM:
		chatModel, err := cfg.LLM.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("init chat model: %w", err)
		}
		llm, err := classify.NewLLMClassifier(ctx, chatModel, classify.NewRuleClassifier())
		if err != nil {
			return nil, err
		}
		return llm, nil
	default:
		return classify.NewMockClassifier(cfg.MockLatency, nil), nil
	}
}

// Repository opens the SQLite store when a path is configured. The returned
// closer must be called on shutdown.
func Repository(cfg config.IssuesConfig) (issue.Repository, io.Closer, error) {
	if cfg.StorePath == "" {
		return issue.NewMemoryRepository(), io.NopCloser(nil), nil
	}
	repo, err := issue.NewSQLiteRepository(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("issue store opened at %s", cfg.StorePath)
	return repo, repo, nil
}

// Submitter posts to the remote issue API when an endpoint is configured and
// writes straight into repo otherwise.
func Submitter(cfg config.IssuesConfig, repo issue.Repository) issue.Submitter {
	if cfg.Endpoint != "" {
		return issue.NewHTTPSubmitter(cfg.Endpoint, &http.Client{Timeout: cfg.SubmitTimeout})
	}
	return issue.NewStoreSubmitter(repo)
}
