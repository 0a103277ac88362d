package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shopper-cli/internal/artifact"
	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/store"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect stored batch artifacts",
}

// -- artifacts list --

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored artifacts, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("artifacts"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mode, _ := cmd.Flags().GetString("mode")
		limit, _ := cmd.Flags().GetInt("limit")

		infos, err := st.ListArtifacts(ctx, store.ArtifactFilter{Mode: model.PositionMode(mode), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "artifacts list")
		}
		if len(infos) == 0 {
			fmt.Fprintln(os.Stderr, "No artifacts found.")
			return nil
		}

		formatArtifactsList(os.Stdout, infos)
		return nil
	},
}

// -- artifacts show --

var artifactsShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Print an artifact document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("artifacts"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.GetArtifact(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "artifacts show")
		}

		data, err := artifact.Marshal(a)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	},
}

// formatArtifactsList writes a tabular list of artifacts to out.
func formatArtifactsList(out io.Writer, infos []store.ArtifactInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BATCH\tMODE\tPAGE_SIZE\tPRODUCTS\tCREATED")
	for _, info := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			info.ID,
			strings.ToLower(string(info.Mode)),
			info.PageSize,
			info.ProductCount,
			info.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		)
	}
	_ = w.Flush()
}

func init() {
	artifactsListCmd.Flags().String("mode", "", "filter by position mode")
	artifactsListCmd.Flags().Int("limit", 50, "max number of artifacts to display")

	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsShowCmd)
	rootCmd.AddCommand(artifactsCmd)
}
