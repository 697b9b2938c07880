package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/orchestrator"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
)

var (
	inspectDB      string
	inspectUser    string
	inspectLast    int
	inspectVersion string
	inspectStats   bool
	inspectJSON    bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Browse persisted session versions and outcome stats",
	Args:  cobra.NoArgs,
	RunE:  runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.StringVar(&inspectDB, "db", "", "session database (SESSION_DB)")
	f.StringVar(&inspectUser, "user", "", "only this LINE user id")
	f.IntVar(&inspectLast, "last", 20, "show N most recent versions")
	f.StringVar(&inspectVersion, "version", "", "show one version in full")
	f.BoolVar(&inspectStats, "stats", false, "show accepted-action shares per phase")
	f.BoolVar(&inspectJSON, "json", false, "output JSON instead of a table")
	_ = inspectCmd.MarkFlagRequired("db")
}

// #region rows

type versionRow struct {
	VersionID string         `json:"version_id"`
	UserID    string         `json:"user_id"`
	Stage     session.Stage  `json:"stage"`
	Phase     session.Phase  `json:"phase"`
	Streak    int            `json:"ignore_streak"`
	Action    session.Action `json:"action"`
	Turns     int            `json:"turns"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func toRow(v session.VersionRecord) versionRow {
	s := v.Snapshot.Session
	return versionRow{
		VersionID: v.VersionID,
		UserID:    v.UserID,
		Stage:     s.Stage,
		Phase:     s.Phase,
		Streak:    s.IgnoreStreak,
		Action:    s.Plan.ActionOr(""),
		Turns:     s.Turns,
		Reason:    v.Reason,
		CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type statRow struct {
	Phase         session.Phase             `json:"phase"`
	Actions       []orchestrator.ActionStat `json:"actions"`
	ViolationRate float64                   `json:"violation_rate"`
	Attempts      int                       `json:"attempts"`
}

// #endregion rows

func runInspect(cmd *cobra.Command, _ []string) error {
	store, err := session.NewSnapshotStore(inspectDB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	switch {
	case inspectVersion != "":
		v, err := store.GetVersion(ctx, inspectVersion)
		if err != nil {
			return err
		}
		dump, err := v.Snapshot.DumpJSON()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Version: %s\nParent:  %s\nReason:  %s\n\n%s\n", v.VersionID, v.ParentID, v.Reason, dump)
		return nil

	case inspectStats:
		mem, err := orchestrator.NewOutcomeMemory(store.DB())
		if err != nil {
			return err
		}
		var rows []statRow
		for _, p := range []session.Phase{session.PhaseBeforeSend, session.PhaseWaitingReply, session.PhaseAfterReply, session.PhaseUnknown} {
			stats, err := mem.ActionStats(p)
			if err != nil {
				return err
			}
			rate, n, err := mem.ViolationRate(p)
			if err != nil {
				return err
			}
			rows = append(rows, statRow{Phase: p, Actions: stats, ViolationRate: rate, Attempts: n})
		}
		if inspectJSON {
			return printJSON(out, rows)
		}
		for _, r := range rows {
			fmt.Fprintf(out, "%-14s attempts=%d violations=%.0f%%\n", r.Phase, r.Attempts, r.ViolationRate*100)
			for _, a := range r.Actions {
				fmt.Fprintf(out, "  %-16s %5.1f%%  (n=%d)\n", a.Action, a.Share*100, a.Samples)
			}
		}
		return nil
	}

	versions, err := store.ListVersions(ctx, inspectUser, inspectLast)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(out, "no versions found")
		return nil
	}
	rows := make([]versionRow, len(versions))
	for i, v := range versions {
		// store order is newest first; print chronologically
		rows[len(versions)-1-i] = toRow(v)
	}
	if inspectJSON {
		return printJSON(out, rows)
	}
	printVersionTable(out, rows)
	return nil
}

func printVersionTable(w io.Writer, rows []versionRow) {
	fmt.Fprintf(w, "%-12s  %-12s  %-10s  %-14s  %6s  %-14s  %5s  %s\n",
		"Version", "User", "Stage", "Phase", "Streak", "Action", "Turns", "Time")
	for _, r := range rows {
		fmt.Fprintf(w, "%-12s  %-12s  %-10s  %-14s  %6d  %-14s  %5d  %s\n",
			shortID(r.VersionID), shortID(r.UserID), r.Stage, r.Phase, r.Streak, r.Action, r.Turns, r.CreatedAt)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
