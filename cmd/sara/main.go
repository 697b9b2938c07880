// Package main is the sara CLI: the LINE webhook server plus local tools for
// chatting, evaluating, replaying and inspecting sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/config"
)

var (
	envFiles []string
	logLevel string
	version  = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:           "sara",
	Short:         "Sara - LINE romance-advice chatbot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("sara v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")
	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "bind log-level flag: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, chatCmd, evalCmd, replayCmd, inspectCmd, exportCmd, billingCmd, versionCmd)
}

// loadConfig reads the dotenv files and environment, then applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}
