package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clinicalintel/intake/internal/config"
	"github.com/clinicalintel/intake/internal/otel"
)

// resolvedVersion prefers the module version recorded by `go install
// ...@vX.Y.Z` over the "dev" placeholder.
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

var tracer = otel.Tracer("github.com/clinicalintel/intake/internal/cmd")

var (
	// telemetry holds the OTel shutdown function and, with the prometheus
	// exporter, the /metrics handler.
	telemetry *otel.Telemetry

	// Set with -ldflags "-X github.com/clinicalintel/intake/internal/cmd.Version=..."
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "PII redaction and patient intake for clinical conversations",
	Long: `Intake turns transcribed doctor-patient conversations into records that are
safe to store.

It provides:
- Redaction of dates and SSNs on every input
- Gated redaction of personal names (entity model or trigger keywords)
- Patient identification over one-way hashed identities
- Storage of redacted conversations only, with scheduled retention`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		// --otel, -v or INTAKE_OTEL_ENABLED=true
		t, err := otel.Setup(otel.Config{
			ServiceName:     "intake",
			Version:         resolvedVersion(),
			Enabled:         otelFlag || verbose || viper.GetBool(config.KeyOTelEnabled),
			MetricsExporter: viper.GetString(config.KeyMetricsExporter),
		})
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}
		telemetry = t
		return nil
	},
}

// setupLogging configures the global zerolog logger from --log-level and
// --log-format, or INTAKE_LOG_LEVEL and INTAKE_LOG_FORMAT. Logs always go to
// stderr so stdout carries only command output (intake redact - | jq).
func setupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("log_level")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = newLogger(os.Stderr, viper.GetString("log_format"))
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./intake.config.yaml or ~/.intake/intake.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.intake")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("intake.config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	// A missing config file is fine; env and defaults still apply.
	_ = viper.ReadInConfig()
}

// Execute runs the CLI and flushes telemetry before returning.
func Execute() error {
	err := rootCmd.Execute()
	if telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(ctx)
	}
	return err
}
