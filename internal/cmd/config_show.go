package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clinicalintel/intake/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage intake configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		source := viper.ConfigFileUsed()
		if source == "" {
			source = "(none; env and defaults)"
		}
		fmt.Fprintf(out, "Config file:        %s\n", source)

		dirState := "missing"
		if info, err := os.Stat(cfg.DataDir); err == nil && info.IsDir() {
			dirState = "exists"
		}
		fmt.Fprintf(out, "Data directory:     %s (%s)\n", cfg.DataDir, dirState)
		fmt.Fprintf(out, "Patient DB:         %s\n", cfg.DBPath())
		fmt.Fprintf(out, "Pattern file:       %s\n", orNone(cfg.PatternFile))
		fmt.Fprintf(out, "NER provider:       %s\n", cfg.NERProvider)
		if cfg.NEREnabled() {
			fmt.Fprintf(out, "NER model:          %s\n", cfg.NERModel)
			fmt.Fprintf(out, "NER base URL:       %s\n", orNone(cfg.NERBaseURL))
			fmt.Fprintf(out, "NER API key:        %s\n", maskSecret(cfg.NERAPIKey))
		}
		fmt.Fprintf(out, "API keys:           %d configured\n", len(cfg.APIKeys))
		fmt.Fprintf(out, "CORS origins:       %s\n", orNone(strings.Join(cfg.CORSOrigins, ", ")))
		fmt.Fprintf(out, "Rate limit:         %d req/min per client\n", cfg.RateLimitRPM)
		if cfg.RateLimitGlobal > 0 {
			fmt.Fprintf(out, "Global rate limit:  %d req/min\n", cfg.RateLimitGlobal)
		}
		fmt.Fprintf(out, "Retention:          %d days at %q\n", cfg.RetentionDays, cfg.RetentionSchedule)
		fmt.Fprintf(out, "Metrics exporter:   %s\n", cfg.MetricsExporter)
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
