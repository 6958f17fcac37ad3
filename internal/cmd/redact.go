package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clinicalintel/intake/internal/config"
	"github.com/clinicalintel/intake/internal/ingest"
	"github.com/clinicalintel/intake/internal/pii"
)

var (
	redactAllow  []string
	redactGate   string
	redactFormat string
)

var redactCmd = &cobra.Command{
	Use:   "redact [file|-]",
	Short: "Redact PII from a transcript file or stdin",
	Long: `Redact prints the transcript with dates, SSNs and (when the gate allows)
personal names replaced by [DATE], [SSN] and [NAME].

Files may be .txt, .md, .html or .json transcription segments. With no
argument or "-", text is read from stdin. --allow skips the gate and names
the categories to attempt, e.g. --allow NAME.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringSliceVar(&redactAllow, "allow", nil, "categories the caller allows (skips the gate)")
	redactCmd.Flags().StringVar(&redactGate, "gate", gateSemantic, "NAME gate (keyword, semantic)")
	redactCmd.Flags().StringVar(&redactFormat, "format", formatText, "output format (text, json)")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact")
	defer span.End()

	if err := checkFormat(redactFormat); err != nil {
		return err
	}
	var allowed pii.CategorySet
	if cmd.Flags().Changed("allow") {
		set, err := parseCategories(redactAllow)
		if err != nil {
			return err
		}
		allowed = set
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	text, err := readTranscript(cmd, cfg, args)
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg, redactGate)
	if err != nil {
		return err
	}

	d, out := ingest.NewService(engine, nil, nil).Redact(ctx, text, allowed)

	w := cmd.OutOrStdout()
	if redactFormat == formatJSON {
		return printJSON(w, map[string]interface{}{
			"redacted_text":    out.Text,
			"categories_found": out.Found,
			"gate_reason":      d.Reason,
		})
	}
	fmt.Fprint(w, out.Text)
	if !strings.HasSuffix(out.Text, "\n") {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "categories: %s (gate: %s)\n", formatCategories(out.Found), d.Reason)
	return nil
}

func readTranscript(cmd *cobra.Command, cfg *config.Config, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		limit := int64(cfg.MaxFileMB) * 1024 * 1024
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), limit+1))
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		if int64(len(data)) > limit {
			return "", fmt.Errorf("input exceeds limit %d bytes", limit)
		}
		return string(data), nil
	}
	return ingest.NewFileReader(cfg.MaxFileMB).Read(cmd.Context(), args[0])
}
