package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shopper-cli/internal/catalog"
	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/mutate"
	"github.com/sells-group/shopper-cli/internal/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate experimental batch artifacts from the seed catalog",
	Long:  "Samples a batch, applies the experiment plan, assigns positions, injects commercial tags and writes a sealed artifact to the output directory and the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyGenerateFlags(cmd)
		if err := cfg.Validate("generate"); err != nil {
			return err
		}

		cat, err := catalog.LoadFile(ctx, cfg.Catalog.Path)
		if err != nil {
			return err
		}

		overrideMultiplier := cmd.Flags().Changed("price-multiplier") || cfg.Generate.PriceMultiplier != 1
		spec, err := planSpec(cfg.Generate.PlanPath, cfg.Generate.PriceMultiplier, overrideMultiplier)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		seed := cfg.Generate.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		zap.L().Info("generate: starting",
			zap.Uint64("seed", seed),
			zap.Int("catalog_size", cat.Len()),
			zap.String("mode", cfg.Generate.Mode),
		)

		opts := pipeline.GenerateOptions{
			BatchSize: cfg.Generate.BatchSize,
			PageSize:  cfg.Generate.PageSize,
			Mode:      model.PositionMode(cfg.Generate.Mode),
			Category:  cfg.Generate.Category,
			Spec:      spec,
			OutputDir: cfg.Generate.OutputDir,
		}
		if cfg.Tags.Enabled {
			opts.Tags = &pipeline.TagOptions{Injection: cfg.Tags.Injection, Limits: cfg.Tags.Limits}
		}

		p := pipeline.New(cat, st, nil, seed)
		count, _ := cmd.Flags().GetInt("count")
		all, _ := cmd.Flags().GetBool("all-categories")

		var results []pipeline.GenerateResult
		for i := 0; i < count; i++ {
			if all {
				batch, err := p.GenerateAll(ctx, opts)
				results = append(results, batch...)
				if err != nil {
					return eris.Wrap(err, "generate")
				}
				continue
			}
			res, err := p.Generate(ctx, opts)
			if err != nil {
				return eris.Wrap(err, "generate")
			}
			results = append(results, *res)
		}

		formatGenerateResults(os.Stdout, results)
		return nil
	},
}

// applyGenerateFlags overrides config values with explicitly set flags.
func applyGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("catalog") {
		cfg.Catalog.Path, _ = f.GetString("catalog")
	}
	if f.Changed("out") {
		cfg.Generate.OutputDir, _ = f.GetString("out")
	}
	if f.Changed("size") {
		cfg.Generate.BatchSize, _ = f.GetInt("size")
	}
	if f.Changed("page-size") {
		cfg.Generate.PageSize, _ = f.GetInt("page-size")
	}
	if f.Changed("mode") {
		cfg.Generate.Mode, _ = f.GetString("mode")
	}
	if f.Changed("category") {
		cfg.Generate.Category, _ = f.GetString("category")
	}
	if f.Changed("seed") {
		cfg.Generate.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("price-multiplier") {
		cfg.Generate.PriceMultiplier, _ = f.GetFloat64("price-multiplier")
	}
	if f.Changed("plan") {
		cfg.Generate.PlanPath, _ = f.GetString("plan")
	}
	if f.Changed("no-tags") {
		noTags, _ := f.GetBool("no-tags")
		cfg.Tags.Enabled = !noTags
	}
}

// planSpec loads the experiment plan when one is configured. With override
// set, multiplier replaces the plan's.
func planSpec(path string, multiplier float64, override bool) (mutate.Spec, error) {
	spec := mutate.Identity()
	if path != "" {
		s, err := mutate.LoadPlan(path)
		if err != nil {
			return mutate.Spec{}, err
		}
		spec = s
	}
	if override {
		spec.PriceMultiplier = multiplier
	}
	return spec, spec.Validate()
}

func formatGenerateResults(out io.Writer, results []pipeline.GenerateResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BATCH\tMODE\tPRODUCTS\tMISSES\tTAG_WARNINGS\tPATH")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Artifact.ID, r.Artifact.Mode, len(r.Artifact.Products), len(r.Misses), len(r.Violations), r.Path)
	}
	_ = w.Flush()
}

func init() {
	f := generateCmd.Flags()
	f.String("catalog", "", "seed catalog JSON file")
	f.String("out", "", "directory for artifact files")
	f.Int("size", 0, "products per batch")
	f.Int("page-size", 0, "products per results page")
	f.String("mode", "", "position mode (random, price_asc, price_desc, rating_desc)")
	f.String("category", "", "restrict sampling to one category (case-insensitive)")
	f.Uint64("seed", 0, "random seed; 0 picks one and logs it")
	f.Float64("price-multiplier", 1, "multiply every price")
	f.String("plan", "", "YAML experiment plan with targeted and tag mutations")
	f.Bool("no-tags", false, "disable commercial tag injection")
	f.Int("count", 1, "number of batches to generate")
	f.Bool("all-categories", false, "generate one batch per catalog category")

	rootCmd.AddCommand(generateCmd)
}
