package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/billing"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/bot"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/line"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

var (
	chatUser    string
	chatPaid    bool
	chatVerbose bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to Sara in the terminal",
	Long: `Runs the full funnel locally against an in-memory billing store.
Lines starting with /image <path> send a local screenshot; /quit exits.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user id for the session")
	chatCmd.Flags().BoolVar(&chatPaid, "paid", false, "start with an active subscription")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "print phase, plan and rules after paid turns")
}

// localImages reads image messages from disk; the message id is the path.
type localImages struct{}

func (localImages) FetchImage(_ context.Context, path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, line.SniffImage(data), nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging())

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := billing.Open("sqlite", ":memory:", logger)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()
	if chatPaid {
		if err := store.SetStatus(ctx, chatUser, billing.StatusActive, "", ""); err != nil {
			return err
		}
	}

	b, err := bot.New(cfg.Bot(), bot.Deps{
		Sessions:     a.sessions,
		Orchestrator: a.orch,
		Billing:      store,
		Vision:       a.llm,
		Images:       localImages{},
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	return chatLoop(ctx, b, os.Stdin, cmd.OutOrStdout())
}

// chatLoop reads one event per line until EOF or /quit.
func chatLoop(ctx context.Context, h line.Handler, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "you> ")
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "/quit" {
			return nil
		}
		if text != "" {
			reply, err := h.Handle(ctx, chatEvent(chatUser, text))
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if reply.Text != "" {
				fmt.Fprintf(out, "sara> %s\n", reply.Text)
			}
			if chatVerbose && reply.Turn != nil {
				t := reply.Turn
				fmt.Fprintf(out, "  [%s/%s action=%s source=%s gate=%s rules=%s]\n",
					t.Classification.Phase, t.Classification.Rule,
					t.Plan.Plan.ActionOr("-"), t.Plan.Source, t.Gate.Action, strings.Join(t.Policy.IDs(), ","))
			}
		}
		fmt.Fprint(out, "you> ")
	}
	return sc.Err()
}

func chatEvent(userID, text string) bot.Event {
	if path, ok := strings.CutPrefix(text, "/image "); ok {
		return bot.Event{UserID: userID, Kind: bot.EventImage, MessageID: strings.TrimSpace(path)}
	}
	return bot.Event{UserID: userID, Kind: bot.EventText, Text: text}
}
