package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/billing"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/bot"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/line"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LINE webhook server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New(cfg.Logging())

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := billing.Open(cfg.BillingDriver, cfg.BillingDSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := line.NewClient(line.ClientConfig{AccessToken: cfg.LineChannelAccessToken}, logger)
	if err != nil {
		return err
	}

	b, err := bot.New(cfg.Bot(), bot.Deps{
		Sessions:     a.sessions,
		Orchestrator: a.orch,
		Billing:      store,
		Vision:       a.llm,
		Images:       client,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	callback := line.NewWebhook(cfg.LineChannelSecret, b, client, store, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "version", version, "orchestrator", a.orch.Enabled(), "session_db", cfg.SessionDB != "")
	return server.New(cfg.Server(), callback, logger).Run(ctx)
}
