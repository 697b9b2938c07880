package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/replay"
)

var (
	replayFixture string
	replayDB      string
	replayUser    string
	replayLast    int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run recorded turns through the deterministic pipeline",
	Long: `Replays a fixture file, or a user's recorded turns straight from the
session database, and reports every divergence from what was recorded.
Exits non-zero on any divergence.`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayFixture, "fixture", "", "fixture JSON path")
	f.StringVar(&replayDB, "db", "", "session database (SESSION_DB)")
	f.StringVar(&replayUser, "user", "", "LINE user id (with --db)")
	f.IntVar(&replayLast, "last", 0, "replay only the last N turns (with --db)")
	replayCmd.MarkFlagsMutuallyExclusive("fixture", "db")
	replayCmd.MarkFlagsOneRequired("fixture", "db")
	replayCmd.MarkFlagsRequiredTogether("db", "user")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	var fx *replay.Fixture
	if replayFixture != "" {
		f, err := replay.LoadFixture(replayFixture)
		if err != nil {
			return err
		}
		fx = f
	} else {
		recs, err := loadTurnRecords(replayDB, replayUser, replayLast)
		if err != nil {
			return err
		}
		fx = buildFixture(recs, "db replay for "+replayUser)
	}

	start, interactions, expected, config := fx.Parts()
	results, final, err := replay.Replay(cmd.Context(), start, interactions, config)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printResults(out, results)

	sum := replay.Summarize(results, final)
	diffs := replay.Compare(results, expected)
	fmt.Fprintf(out, "\nSummary: %d turns, %d commit, %d gate_reject, %d divergences\n",
		sum.TotalTurns, sum.Commits, sum.GateRejects, len(diffs))
	for _, d := range diffs {
		fmt.Fprintln(out, "  DIFF", d)
	}
	if len(diffs) > 0 {
		return fmt.Errorf("%d divergences", len(diffs))
	}
	return nil
}

func printResults(w io.Writer, results []replay.ReplayResult) {
	fmt.Fprintf(w, "%-12s| %-14s| %-6s| %-12s| %-14s| %s\n", "Turn", "Phase", "Streak", "Gate", "Plan", "Rules")
	fmt.Fprintf(w, "%-12s+%-15s+%-7s+%-13s+%-15s+%s\n",
		"------------", "---------------", "-------", "-------------", "---------------", "------")
	for _, r := range results {
		fmt.Fprintf(w, "%-12s| %-14s| %-6d| %-12s| %-14s| %d\n",
			shortID(r.TurnID), r.Phase, r.IgnoreStreak, r.Action, r.PlanAction, len(r.Rules))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
