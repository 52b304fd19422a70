package advisor

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ecomsimply/repricer/internal/config"
	"github.com/ecomsimply/repricer/internal/logger"
	"github.com/ecomsimply/repricer/internal/storage"
)

// Advisor produces a short natural-language summary of recent repricing
// activity. Advisory text only: nothing it says feeds back into pricing
// decisions. Disabled unless configured.
type Advisor struct {
	client  *openai.Client
	model   string
	enabled bool
	cfg     *config.Config
	logger  *logger.Logger
}

func New(cfg *config.Config, log *logger.Logger) *Advisor {
	if !cfg.Advisor.Enabled {
		return &Advisor{enabled: false, logger: log}
	}

	ocfg := openai.DefaultConfig(cfg.Advisor.APIKey)
	if cfg.Advisor.BaseURL != "" {
		ocfg.BaseURL = cfg.Advisor.BaseURL
	}

	return &Advisor{
		client:  openai.NewClientWithConfig(ocfg),
		model:   cfg.Advisor.Model,
		enabled: true,
		cfg:     cfg,
		logger:  log,
	}
}

func (a *Advisor) Enabled() bool {
	return a.enabled
}

// Summarize turns recent history entries into a seller-facing digest.
func (a *Advisor) Summarize(ctx context.Context, entries []storage.PricingHistory) (string, error) {
	if !a.enabled {
		return "", fmt.Errorf("advisor is disabled")
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no repricing activity to summarize")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.AdvisorTimeout())
	defer cancel()

	userPrompt := BuildUserPrompt(entries)

	a.logger.Info("requesting repricing summary", "entries", len(entries))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("advisor API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("advisor returned no choices")
	}

	summary := resp.Choices[0].Message.Content
	a.logger.Debug("advisor summary received", "length", len(summary))
	return summary, nil
}
