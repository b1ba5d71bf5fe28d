package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cyderes/check-export-service/internal/check"
	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/export"
	"github.com/cyderes/check-export-service/internal/flatten"
	"github.com/cyderes/check-export-service/internal/logging"
	"github.com/cyderes/check-export-service/internal/table"
)

// ErrFetch is returned when the Check API could not provide a document
var ErrFetch = errors.New("fetch failed")

var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch a team once and write the flattened table",
	Long: `Fetches the configured team from the Check API, flattens it and writes the
table to a file or stdout. User names are replaced by a placeholder with
--anonymize.`,
	RunE: runExport,
}

func init() {
	ExportCmd.Flags().StringP("out", "o", "-", "output file, - for stdout")
	ExportCmd.Flags().StringP("format", "f", "csv", "output format: csv, xlsx or json")
	ExportCmd.Flags().Bool("anonymize", false, "replace user names with a placeholder")
	ExportCmd.Flags().String("team", "", "team slug, overrides CHECK_TEAM")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if team, _ := cmd.Flags().GetString("team"); team != "" {
		cfg.Check.Team = team
	}
	if err := cfg.Check.RequireCheck(); err != nil {
		return err
	}

	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	anonymize, _ := cmd.Flags().GetBool("anonymize")
	out, _ := cmd.Flags().GetString("out")

	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := check.NewClient(cfg.Ingestion, logger)
	opts := flatten.Options{AnswerDateFromResponse: cfg.Check.AnswerDateFromResponse}

	result, err := check.Fetch(ctx, client, check.ParamsFromConfig(cfg.Check), opts)
	if err != nil {
		logger.WithError(err).Error("Export failed")
		return err
	}

	result = table.Render(result, anonymize)
	if result.IsError() {
		fmt.Fprintln(cmd.ErrOrStderr(), result.Error)
		return ErrFetch
	}

	if err := writeOutput(cmd.OutOrStdout(), out, result.Table, format); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"team":    cfg.Check.Team,
		"rows":    result.Table.Len(),
		"columns": len(result.Table.Columns),
		"format":  format,
		"out":     out,
	}).Info("Export written")
	return nil
}

func writeOutput(stdout io.Writer, path string, t *table.Table, format export.Format) error {
	if path == "-" || path == "" {
		return export.Write(stdout, t, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.Write(f, t, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
