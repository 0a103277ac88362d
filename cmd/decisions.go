package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/pipeline"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Manage decision records",
}

// -- decisions import --

var decisionsImportCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Validate and store decision records",
	Long:  "Parses each file as a decision record or runner envelope, checks it against its stored batch and saves it. Use - to read standard input.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("decisions"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		strict, _ := cmd.Flags().GetBool("strict")
		p := pipeline.New(nil, st, nil, 0)

		var imported, rejected int
		for _, path := range args {
			data, err := readInput(path)
			if err != nil {
				return err
			}
			rec, err := p.ImportDecision(ctx, data)
			if err != nil {
				if strict {
					return eris.Wrapf(err, "decisions import %s", path)
				}
				zap.L().Warn("decisions: rejected", zap.String("file", path), zap.Error(err))
				rejected++
				continue
			}
			imported++
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", rec.ID, rec.BatchID, choiceLabel(rec))
		}

		fmt.Fprintf(os.Stderr, "imported %d, rejected %d\n", imported, rejected)
		if imported == 0 && rejected > 0 {
			return eris.New("decisions import: no records imported")
		}
		return nil
	},
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, eris.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path)
	return data, eris.Wrapf(err, "read %s", path)
}

func choiceLabel(rec model.DecisionRecord) string {
	if rec.IsNoPurchase() {
		return "(no purchase)"
	}
	return rec.FinalChoice
}

func init() {
	decisionsImportCmd.Flags().Bool("strict", false, "stop at the first rejected record")

	decisionsCmd.AddCommand(decisionsImportCmd)
	rootCmd.AddCommand(decisionsCmd)
}
