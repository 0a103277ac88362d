package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shopper-cli/internal/attribution"
	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/pipeline"
)

var attributeCmd = &cobra.Command{
	Use:   "attribute",
	Short: "Join stored decisions to their batches and export rows",
	Long:  "Builds one row per offered product per decision, stores the rows, writes them as CSV or XLSX and prints a per-provider summary. With --from, only summarizes an exported CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		if from, _ := f.GetString("from"); from != "" {
			rows, err := readRows(from)
			if err != nil {
				return err
			}
			formatSummary(os.Stdout, attribution.FormatSummary(attribution.Summarize(rows)))
			return nil
		}
		if f.Changed("format") {
			cfg.Attribution.Format, _ = f.GetString("format")
		}
		if f.Changed("output") {
			cfg.Attribution.Output, _ = f.GetString("output")
		}
		if f.Changed("concurrency") {
			cfg.Attribution.Concurrency, _ = f.GetInt("concurrency")
		}
		if err := cfg.Validate("attribute"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batchID, _ := f.GetString("batch")
		report, err := pipeline.New(nil, st, nil, 0).Attribute(ctx, batchID, cfg.Attribution.Concurrency)
		if err != nil {
			return eris.Wrap(err, "attribute")
		}

		if err := writeRows(cfg.Attribution.Output, cfg.Attribution.Format, report); err != nil {
			return err
		}

		formatSummary(os.Stdout, attribution.FormatSummary(attribution.Summarize(report.Rows)))
		if len(report.Rejections) > 0 {
			fmt.Fprintf(os.Stderr, "%d decision(s) rejected\n", len(report.Rejections))
		}
		return nil
	},
}

func writeRows(path, format string, report attribution.Report) error {
	if path == "-" {
		return attribution.Write(os.Stdout, format, report.Rows)
	}
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := attribution.Write(out, format, report.Rows); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(out.Close(), "close %s", path)
}

// readRows loads rows from a CSV written by a previous attribute run.
func readRows(path string) ([]model.AttributionRow, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer in.Close() //nolint:errcheck
	return attribution.ReadCSV(in)
}

func formatSummary(out io.Writer, table [][]string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, row := range table {
		for i, cell := range row {
			if i > 0 {
				_, _ = fmt.Fprint(w, "\t")
			}
			_, _ = fmt.Fprint(w, cell)
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func init() {
	attributeCmd.Flags().String("batch", "", "only attribute decisions for this batch")
	attributeCmd.Flags().String("format", "", "export format (csv, xlsx)")
	attributeCmd.Flags().String("output", "", "export file path, - for stdout")
	attributeCmd.Flags().Int("concurrency", 0, "parallel attribution workers")
	attributeCmd.Flags().String("from", "", "summarize a previously exported CSV instead of stored decisions")

	rootCmd.AddCommand(attributeCmd)
}
