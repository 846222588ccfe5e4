package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smartfit-coach/internal/app"
	"smartfit-coach/internal/config"
	"smartfit-coach/internal/database"
	"smartfit-coach/internal/httpapi"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			databaseURL = "data/smartfit.db"
		}
		if err := database.RunMigrations(databaseURL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
		return nil
	},
}

var (
	userTelegramID int64
	userAdmin      bool
)

var addUserCmd = &cobra.Command{
	Use:   "add-user <username>",
	Short: "Create an account and print an access token for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			cfg := a.Config()
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			var telegramID *int64
			if userTelegramID != 0 {
				telegramID = &userTelegramID
			}
			user, err := a.Users.CreateUser(cmd.Context(), args[0], telegramID, userAdmin)
			if err != nil {
				return err
			}
			token, expiresAt, err := httpapi.NewTokenService(cfg).CreateAccessToken(user.ID, user.IsAdmin)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created user %d (%s)\n", user.ID, user.Username)
			fmt.Fprintf(out, "Token: %s\n", token)
			fmt.Fprintf(out, "Expires at: %d\n", expiresAt)
			return nil
		})
	},
}

var resetEatenCmd = &cobra.Command{
	Use:   "reset-eaten",
	Short: "Clear the eaten flag on every food plan item",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			return a.ResetEaten(cmd.Context(), cmd.OutOrStdout())
		})
	},
}

var importFoodsCmd = &cobra.Command{
	Use:   "import-foods <csv-file>",
	Short: "Import foods from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			return a.ImportFoods(cmd.Context(), args[0], cmd.OutOrStdout())
		})
	},
}

var cleanupDays int

var metricsCleanupCmd = &cobra.Command{
	Use:   "metrics-cleanup",
	Short: "Delete execution metrics older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			days := cleanupDays
			if days <= 0 {
				days = a.Config().MetricsRetentionDays
			}
			return a.CleanupMetrics(cmd.Context(), days, cmd.OutOrStdout())
		})
	},
}

var usageDays int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print daily token usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			return a.PrintUsage(cmd.Context(), usageDays, cmd.OutOrStdout())
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration without secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s (%s)\n", cfg.DatabaseURL, database.DialectFor(cfg.DatabaseURL))
		fmt.Fprintf(out, "Provider: %s\n", cfg.LLMProvider)
		fmt.Fprintf(out, "Models: precise=%s creative=%s vision=%s\n", cfg.PreciseModel, cfg.CreativeModel, cfg.VisionModel)
		fmt.Fprintf(out, "Language: %s\n", cfg.ResponseLanguage)
		fmt.Fprintf(out, "Telegram: %t\n", cfg.TelegramEnabled())
		return nil
	},
}

func init() {
	addUserCmd.Flags().Int64Var(&userTelegramID, "telegram-id", 0, "Telegram account to link")
	addUserCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant admin rights")
	metricsCleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention in days (defaults to METRICS_RETENTION_DAYS)")
	usageCmd.Flags().IntVar(&usageDays, "days", 7, "Number of days to report")

	rootCmd.AddCommand(migrateCmd, addUserCmd, resetEatenCmd, importFoodsCmd, metricsCleanupCmd, usageCmd, configCmd)
}
