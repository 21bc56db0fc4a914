package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/halderavik/cbc-design-MCP/internal/config"
)

// rootOptions holds the persistent flags and what PersistentPreRunE
// builds from them
type rootOptions struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
}

// buildRootCmd creates the root command with all subcommands attached
func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cbc",
		Short: "Choice-based conjoint design generator",
		Long: `cbc builds choice-based conjoint designs from an attribute grid.

Methods: random, balanced, orthogonal, doptimal
Export formats: csv, json, qualtrics`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (defaults to $CBC_CONFIG or cbc.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(
		buildGenerateCmd(opts),
		buildOptimizeCmd(opts),
		buildValidateCmd(opts),
		buildEvaluateCmd(opts),
		buildExportCmd(opts),
		buildMCPCmd(opts),
	)
	return rootCmd
}

type generateFlags struct {
	file        string
	format      string
	out         string
	method      string
	seed        int64
	strict      bool
	respondents int
	noMetadata  bool
}

func buildGenerateCmd(opts *rootOptions) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a design from a request file",
		Long: `Generate a design from a request file.

Without --format the full response (design, quality and validation) is
printed as JSON. With --format the design is rendered for fielding.`,
		Example: `  cbc generate -f laptop.yaml
  cbc generate -f laptop.yaml --method doptimal --seed 42 --format csv --out design.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, opts, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Request file (YAML or JSON, - for stdin)")
	cmd.Flags().StringVar(&f.format, "format", "", "Render as csv, json or qualtrics")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Write output to this file instead of stdout")
	cmd.Flags().StringVarP(&f.method, "method", "m", "", "Override the requested method")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Override the RNG seed")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Fail instead of falling back to a simpler method")
	cmd.Flags().IntVar(&f.respondents, "respondents", 0, "Repeat the CSV once per respondent")
	cmd.Flags().BoolVar(&f.noMetadata, "no-metadata", false, "Omit the metadata header")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type optimizeFlags struct {
	file         string
	targetPower  float64
	effectSize   float64
	alpha        float64
	interactions bool
}

func buildOptimizeCmd(opts *rootOptions) *cobra.Command {
	f := &optimizeFlags{}
	cmd := &cobra.Command{
		Use:     "optimize",
		Short:   "Recommend respondents, screens and options for a target power",
		Example: `  cbc optimize -f laptop.yaml --target-power 0.9 --effect-size 0.2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOptimize(cmd, opts, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Request file with the grid and optional bounds")
	cmd.Flags().Float64Var(&f.targetPower, "target-power", 0, "Target statistical power")
	cmd.Flags().Float64Var(&f.effectSize, "effect-size", 0, "Smallest effect to detect")
	cmd.Flags().Float64Var(&f.alpha, "alpha", 0, "Significance level")
	cmd.Flags().BoolVar(&f.interactions, "interactions", false, "Count two-way interaction parameters")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func buildValidateCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a design against its grid and constraints",
		Long: `Check a design against its grid and constraints.

The report is printed either way; the command fails when any violation
is found.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "File with tasks, grid and constraints")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func buildEvaluateCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a design: D-efficiency and level balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, opts, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "File with tasks and grid")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type exportFlags struct {
	file   string
	format string
	out    string
}

func buildExportCmd(opts *rootOptions) *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Generate a design and render it for a survey platform",
		Example: `  cbc export -f export.yaml --format qualtrics --out survey.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Export request file (design_request, format, respondents)")
	cmd.Flags().StringVar(&f.format, "format", "", "Override the requested format")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Write output to this file instead of stdout")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func buildMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the design tools over MCP on stdio",
		Long: `Serve the design tools over MCP on stdio.

Saved studies come from Postgres when DATABASE_URL is set and are kept
in memory otherwise. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd, opts)
		},
	}
}
