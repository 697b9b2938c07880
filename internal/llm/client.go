// Package llm adapts the OpenAI chat completions API to the collaborators the
// bot needs: advice generation, plan extraction, slot assist, summaries and
// screenshot understanding.
package llm

// #region imports
import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/pkg/errors"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

// #endregion

// #region config

// Config selects models and limits for each call kind.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the public endpoint

	ChatModel   string
	PlanModel   string
	AssistModel string
	VisionModel string

	ChatTemperature   float64
	VisionTemperature float64
	ChatMaxTokens     int64
	Timeout           time.Duration
}

// DefaultConfig returns the production models and limits.
func DefaultConfig() Config {
	return Config{
		ChatModel:         "gpt-4.1-mini",
		PlanModel:         "gpt-4.1-mini",
		AssistModel:       "gpt-4.1-mini",
		VisionModel:       "gpt-4o-mini",
		ChatTemperature:   0.7,
		VisionTemperature: 0.2,
		ChatMaxTokens:     700,
		Timeout:           45 * time.Second,
	}
}

// #endregion

// #region client

// ErrEmptyCompletion is returned when the model answers with no content.
var ErrEmptyCompletion = errors.New("empty completion")

// Client is a thin wrapper over openai.Client. It is safe for concurrent use.
type Client struct {
	api openai.Client
	cfg Config
	log *log.Logger
}

// New creates a Client. An API key is required.
func New(cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: OPENAI_API_KEY is not set")
	}
	def := DefaultConfig()
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}
	if cfg.PlanModel == "" {
		cfg.PlanModel = def.PlanModel
	}
	if cfg.AssistModel == "" {
		cfg.AssistModel = cfg.PlanModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = def.VisionModel
	}
	if cfg.ChatMaxTokens <= 0 {
		cfg.ChatMaxTokens = def.ChatMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api: openai.NewClient(opts...),
		cfg: cfg,
		log: logging.ForComponent(logger, "llm"),
	}, nil
}

// #endregion

// #region completion

// complete runs one chat completion and returns the first choice's content.
func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", errors.Wrapf(err, "chat completion (%s)", params.Model)
	}
	c.log.Debug("completion", "model", params.Model, "ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", errors.Wrap(ErrEmptyCompletion, "no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// CompleteJSON asks model for a single JSON object. It satisfies plan.Completer.
func (c *Client) CompleteJSON(ctx context.Context, system, prompt string) (string, error) {
	return c.completeJSON(ctx, c.cfg.PlanModel, system, prompt)
}

func (c *Client) completeJSON(ctx context.Context, model, system, prompt string) (string, error) {
	return c.complete(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
}

// #endregion
