// Package scripts generates short practice scripts for speaking exercises.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
)

// ErrInvalidRequest marks requests rejected before calling the model.
var ErrInvalidRequest = errors.New("invalid script request")

const (
	TypeCasual = "casual"
	TypeFormal = "formal"

	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 500
	defaultTemperature = 0.7
)

// Request asks for a script of the given type about a topic.
type Request struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

func (r Request) Validate() error {
	if r.Type != TypeCasual && r.Type != TypeFormal {
		return fmt.Errorf("%w: type must be %q or %q", ErrInvalidRequest, TypeCasual, TypeFormal)
	}
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic must be a non-empty string", ErrInvalidRequest)
	}
	return nil
}

// Prompt is the instruction sent to the model.
func (r Request) Prompt() string {
	return fmt.Sprintf("Write a %s script about %s. It should be concise and suitable for a speech practice exercise.",
		r.Type, strings.TrimSpace(r.Topic))
}

// Generator produces practice scripts.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// OpenAIGenerator implements Generator with OpenAI chat completions.
type OpenAIGenerator struct {
	client      oai.Client
	model       string
	maxTokens   int
	temperature float64
	log         zerolog.Logger
}

func NewOpenAIGenerator(cfg Config, log zerolog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         log.With().Str("component", "scripts").Logger(),
	}, nil
}

// Generate validates req and returns the trimmed script text.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(g.model),
		Messages:            []oai.ChatCompletionMessageParamUnion{oai.UserMessage(req.Prompt())},
		MaxCompletionTokens: param.NewOpt(int64(g.maxTokens)),
		Temperature:         param.NewOpt(g.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	script := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.log.Debug().
		Str("type", req.Type).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("script generated")
	return script, nil
}
