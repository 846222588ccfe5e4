package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"smartfit-coach/internal/app"
	"smartfit-coach/internal/config"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "smartfit",
	Short: "smartfit manages the coaching backend from the terminal",
	Long:  "smartfit runs maintenance tasks against the coaching database: migrations, accounts, food imports and token usage reports.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		app.NewLogger(logLevel)
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// withApp loads the configuration, opens the application and closes it when fn
// returns.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
