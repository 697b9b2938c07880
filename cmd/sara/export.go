package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/replay"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

var (
	exportDB   string
	exportUser string
	exportLast int
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export-fixture",
	Short: "Export a user's recorded turns as a replay fixture",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportDB, "db", "", "session database (SESSION_DB)")
	f.StringVar(&exportUser, "user", "", "LINE user id")
	f.IntVar(&exportLast, "last", 10, "number of most recent turns to export")
	f.StringVar(&exportOut, "out", "", "output fixture path")
	for _, name := range []string{"db", "user", "out"} {
		_ = exportCmd.MarkFlagRequired(name)
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	recs, err := loadTurnRecords(exportDB, exportUser, exportLast)
	if err != nil {
		return err
	}
	fx := buildFixture(recs, fmt.Sprintf("export of %d turns for %s", len(recs), exportUser))
	if err := replay.WriteFixture(exportOut, fx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d interactions)\n", exportOut, len(fx.Interactions))
	return nil
}

// loadTurnRecords returns the last n decoded turn records of userID, oldest
// first. Rows without a record are skipped.
func loadTurnRecords(dbPath, userID string, n int) ([]logging.TurnRecord, error) {
	store, err := session.NewSnapshotStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	entries, err := logging.ListTurns(store.DB(), userID, 0)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	var recs []logging.TurnRecord
	for _, e := range entries {
		rec, err := logging.DecodeRecord(e)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no recorded turns for %q", userID)
	}
	return recs, nil
}

// buildFixture turns recorded turns into a fixture. The start session is the
// first turn's prior phase with its recorded slots; the first turn carries no
// streak expectation because the prior streak is not recorded.
func buildFixture(recs []logging.TurnRecord, description string) *replay.Fixture {
	first := recs[0]
	fx := &replay.Fixture{
		Description: description,
		StartSession: replay.FixtureStartSession{
			UserID: first.UserID,
			Phase:  session.Phase(first.PriorPhase),
			Slots:  first.Slots,
		},
		Interactions:    make([]replay.FixtureInteraction, len(recs)),
		ExpectedResults: make([]replay.FixtureExpectedResult, len(recs)),
	}
	for i, r := range recs {
		fx.Interactions[i] = replay.FixtureInteraction{TurnID: r.TurnID, UserText: r.UserText, Reply: r.Reply}
		exp := replay.FixtureExpectedResult{
			TurnID:     r.TurnID,
			Action:     mapGateAction(r.GateAction),
			Phase:      session.Phase(r.Phase),
			PlanAction: session.Action(r.Action),
			Rules:      r.Rules,
		}
		if i > 0 {
			streak := r.Streak
			exp.IgnoreStreak = &streak
		}
		fx.ExpectedResults[i] = exp
	}
	return fx
}

// mapGateAction converts a logged gate action to the replay vocabulary.
func mapGateAction(a string) string {
	if a == "reject" {
		return "gate_reject"
	}
	return a
}
