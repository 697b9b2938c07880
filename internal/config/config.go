// Package config loads process settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/bot"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/llm"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/server"
)

// #region config

// Config is every setting the binaries read.
type Config struct {
	Port           string
	GRPCHealthPort string

	LineChannelSecret      string
	LineChannelAccessToken string

	OpenAIAPIKey      string
	OpenAIBaseURL     string
	PaidChatModel     string
	PlanModel         string
	VisionModel       string
	PaidChatMaxTokens int64
	HistoryMax        int

	SessionDB     string // empty keeps sessions in memory only
	BillingDriver string
	BillingDSN    string
	CheckoutURL   string

	LogLevel  string
	LogFormat string

	OrchestratorEnabled bool
	AssistMinTurns      int
	PlanRecap           bool
}

var defaults = map[string]any{
	"PORT":                  "3000",
	"GRPC_HEALTH_PORT":      "",
	"OPENAI_BASE_URL":       "",
	"PAID_CHAT_MODEL":       "gpt-4.1-mini",
	"PLAN_MODEL":            "gpt-4.1-mini",
	"VISION_MODEL":          "gpt-4o-mini",
	"PAID_CHAT_MAX_TOKENS":  700,
	"PAID_CHAT_HISTORY_MAX": 20,
	"SESSION_DB":            "",
	"BILLING_DRIVER":        "sqlite",
	"BILLING_DSN":           "billing.db",
	"CHECKOUT_URL":          "",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "text",
	"ORCHESTRATOR_ENABLED":  true,
	"ASSIST_MIN_TURNS":      3,
	"PLAN_RECAP":            false,
}

var required = []string{
	"LINE_CHANNEL_SECRET",
	"LINE_CHANNEL_ACCESS_TOKEN",
	"OPENAI_API_KEY",
}

// #endregion config

// #region load

// Load reads envFiles (default ".env", missing files ignored) and then the
// environment, which wins over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range required {
		_ = v.BindEnv(k)
	}

	return &Config{
		Port:                   v.GetString("PORT"),
		GRPCHealthPort:         v.GetString("GRPC_HEALTH_PORT"),
		LineChannelSecret:      v.GetString("LINE_CHANNEL_SECRET"),
		LineChannelAccessToken: v.GetString("LINE_CHANNEL_ACCESS_TOKEN"),
		OpenAIAPIKey:           v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:          v.GetString("OPENAI_BASE_URL"),
		PaidChatModel:          v.GetString("PAID_CHAT_MODEL"),
		PlanModel:              v.GetString("PLAN_MODEL"),
		VisionModel:            v.GetString("VISION_MODEL"),
		PaidChatMaxTokens:      v.GetInt64("PAID_CHAT_MAX_TOKENS"),
		HistoryMax:             v.GetInt("PAID_CHAT_HISTORY_MAX"),
		SessionDB:              v.GetString("SESSION_DB"),
		BillingDriver:          strings.ToLower(v.GetString("BILLING_DRIVER")),
		BillingDSN:             v.GetString("BILLING_DSN"),
		CheckoutURL:            v.GetString("CHECKOUT_URL"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogFormat:              v.GetString("LOG_FORMAT"),
		OrchestratorEnabled:    v.GetBool("ORCHESTRATOR_ENABLED"),
		AssistMinTurns:         v.GetInt("ASSIST_MIN_TURNS"),
		PlanRecap:              v.GetBool("PLAN_RECAP"),
	}, nil
}

// isNotExist treats a missing .env as normal.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// #endregion load

// #region validate

// ValidateLLM checks what every LLM-backed command needs.
func (c *Config) ValidateLLM() error {
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.PaidChatMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("PAID_CHAT_MAX_TOKENS must be positive, got %d", c.PaidChatMaxTokens))
	}
	if c.HistoryMax <= 0 {
		errs = append(errs, fmt.Errorf("PAID_CHAT_HISTORY_MAX must be positive, got %d", c.HistoryMax))
	}
	return errors.Join(errs...)
}

// Validate checks everything the webhook server needs.
func (c *Config) Validate() error {
	errs := []error{c.ValidateLLM()}
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.LineChannelAccessToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	switch c.BillingDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("BILLING_DRIVER must be sqlite or postgres, got %q", c.BillingDriver))
	}
	if c.BillingDSN == "" {
		errs = append(errs, errors.New("BILLING_DSN is required"))
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region derived

// Logging returns the root logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

// LLM returns the OpenAI client settings.
func (c *Config) LLM() llm.Config {
	out := llm.DefaultConfig()
	out.APIKey = c.OpenAIAPIKey
	out.BaseURL = c.OpenAIBaseURL
	out.ChatModel = c.PaidChatModel
	out.PlanModel = c.PlanModel
	out.AssistModel = c.PlanModel
	out.VisionModel = c.VisionModel
	out.ChatMaxTokens = c.PaidChatMaxTokens
	return out
}

// Orchestrator returns the paid-turn pipeline settings.
func (c *Config) Orchestrator() orchestrator.Config {
	out := orchestrator.DefaultConfig()
	out.Enabled = c.OrchestratorEnabled
	out.HistoryWindow = c.HistoryMax
	out.AssistMinTurns = c.AssistMinTurns
	out.Recap = c.PlanRecap
	return out
}

// Server returns the listener settings.
func (c *Config) Server() server.Config {
	out := server.DefaultConfig()
	out.Addr = ":" + c.Port
	if c.GRPCHealthPort != "" {
		out.GRPCAddr = ":" + c.GRPCHealthPort
	}
	return out
}

// Bot returns the funnel settings.
func (c *Config) Bot() bot.Config {
	out := bot.DefaultConfig()
	out.CheckoutURL = c.CheckoutURL
	return out
}

// #endregion derived
