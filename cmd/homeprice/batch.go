package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/homeprice/batch"
	"github.com/rushteam/homeprice/config"
	"github.com/rushteam/homeprice/core"
	"github.com/rushteam/homeprice/pkg/logging"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run batch inference over the raw CSV for a date",
		RunE:  runBatch,
	}
	cmd.Flags().String("date", "", "input date YYYY-MM-DD (default today)")
	return cmd
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	date := time.Now()
	if d, _ := cmd.Flags().GetString("date"); d != "" {
		date, err = time.Parse(batch.DefaultDateLayout, d)
		if err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}
	if err := a.pipeline.Reload(ctx); err != nil {
		return err
	}

	data, err := config.BuildStore(ctx, a.cfg.Batch.Store)
	if err != nil {
		return fmt.Errorf("batch store: %w", err)
	}
	defer data.Close()

	sum, err := batch.NewRunner(data, a.pipeline, a.cfg.Batch.Config).Run(ctx, date)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict prices for a local CSV or JSON file and print results",
		RunE:  runPredict,
	}
	cmd.Flags().StringP("input", "i", "-", "input file (.csv, .json or .jsonl); - reads JSON from stdin")
	cmd.Flags().String("format", batch.FormatCSV, "output format: csv or jsonl")
	return cmd
}

func runPredict(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	input, _ := cmd.Flags().GetString("input")
	format, _ := cmd.Flags().GetString("format")
	records, err := readRecords(cmd.InOrStdin(), input)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: no records", input)
	}
	if err := a.pipeline.Reload(ctx); err != nil {
		return err
	}

	runner := batch.NewRunner(nil, a.pipeline, a.cfg.Batch.Config)
	pred, err := runner.Predict(ctx, records)
	if err != nil {
		return err
	}
	out, err := batch.EncodeRows(batch.Rows(pred), format)
	if err != nil {
		return err
	}
	if _, err := cmd.OutOrStdout().Write(out); err != nil {
		return err
	}
	for _, s := range pred.Skipped {
		logging.Warn().Int("index", s.Index).Str("id", s.ID).Str("kind", string(s.Kind)).Str("reason", s.Reason).Msg("record skipped")
	}
	return nil
}

func readRecords(stdin io.Reader, input string) ([]core.RawRecord, error) {
	var (
		data []byte
		err  error
	)
	if input == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(input, ".csv") {
		return batch.ParseCSV(bytes.NewReader(data))
	}
	return batch.ParseJSON(data)
}
