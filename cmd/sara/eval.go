package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/eval"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

var evalConfig = eval.DefaultEvalConfig()

var evalOnly []string

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run the scenario suite against the live model",
	Args:  cobra.NoArgs,
	RunE:  runEval,
}

func init() {
	f := evalCmd.Flags()
	f.IntVar(&evalConfig.Repeat, "repeat", evalConfig.Repeat, "runs per case; every run must pass")
	f.BoolVar(&evalConfig.FailFast, "fail-fast", false, "stop at the first failing case")
	f.BoolVar(&evalConfig.ShowPassOutput, "show-pass", false, "print replies for passing cases too")
	f.StringVar(&evalConfig.ReportPath, "report", evalConfig.ReportPath, "JSON report path, empty disables it")
	f.StringSliceVar(&evalOnly, "case", nil, "run only cases whose name contains one of these")
}

func runEval(cmd *cobra.Command, _ []string) error {
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

	cases := eval.Cases()
	if len(evalOnly) > 0 {
		cases = lo.Filter(cases, func(c eval.Case, _ int) bool {
			return lo.SomeBy(evalOnly, func(s string) bool { return strings.Contains(c.Name, s) })
		})
	}
	if len(cases) == 0 {
		return fmt.Errorf("no cases match %v", evalOnly)
	}

	report, err := eval.NewEvalHarness(evalConfig, a.orch, cmd.OutOrStdout(), logger).Run(cmd.Context(), cases)
	if err != nil {
		return err
	}
	if report.Summary.Fail > 0 {
		return fmt.Errorf("%d of %d cases failed", report.Summary.Fail, report.Summary.Total)
	}
	return nil
}
