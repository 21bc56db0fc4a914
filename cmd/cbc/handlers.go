package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/halderavik/cbc-design-MCP/catalog"
	"github.com/halderavik/cbc-design-MCP/engine"
	"github.com/halderavik/cbc-design-MCP/export"
	"github.com/halderavik/cbc-design-MCP/internal/api"
	"github.com/halderavik/cbc-design-MCP/internal/config"
	"github.com/halderavik/cbc-design-MCP/internal/logger"
	"github.com/halderavik/cbc-design-MCP/internal/mcptools"
	"github.com/halderavik/cbc-design-MCP/power"
)

// setup loads configuration and installs the logger. Logs always go to
// stderr so stdout stays clean for designs and the stdio transport.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg

	lo := logger.OptionsFromEnv()
	lo.Output = cmd.ErrOrStderr()
	lo.Level = cfg.Log.Level
	if o.logLevel != "" {
		lo.Level = o.logLevel
	}
	lo.SampleRate = max(lo.SampleRate, cfg.Log.SampleRate)
	lo.OTEL = lo.OTEL || cfg.Log.OTEL
	if lo.ServiceName == "" {
		lo.ServiceName = "cbc"
	}
	o.log = logger.Setup(lo)
	return nil
}

func (o *rootOptions) service() *engine.Service {
	return engine.NewService(
		engine.WithLogger(o.log),
		engine.WithLimits(o.cfg.Engine.Limits),
		engine.WithAnnealDefaults(o.cfg.Engine.Anneal),
	)
}

func runGenerate(cmd *cobra.Command, opts *rootOptions, f *generateFlags) error {
	var p api.GenerateParams
	if err := readRequest(cmd, f.file, &p); err != nil {
		return err
	}
	if f.method != "" {
		p.Method = f.method
	}
	if cmd.Flags().Changed("seed") {
		p.Seed = &f.seed
	}
	if f.strict {
		p.Strict = true
	}
	if err := api.Check(p); err != nil {
		return err
	}

	var format export.Format
	if f.format != "" {
		var err error
		if format, err = export.ParseFormat(f.format); err != nil {
			return err
		}
	}

	resp, err := opts.service().Generate(cmd.Context(), p.Request())
	if err != nil {
		return err
	}
	if !resp.Validation.Valid {
		opts.log.Warn("Design has constraint violations", "violations", len(resp.Validation.Violations))
	}

	if f.format == "" {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode design: %w", err)
		}
		return writeOutput(cmd, opts, f.out, string(data)+"\n")
	}

	res, err := api.Render(resp, p.Grid, format, !f.noMetadata, f.respondents)
	if err != nil {
		return err
	}
	return writeOutput(cmd, opts, f.out, res.Content)
}

func runOptimize(cmd *cobra.Command, opts *rootOptions, f *optimizeFlags) error {
	var req power.Request
	if err := readRequest(cmd, f.file, &req); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("target-power") {
		req.TargetPower = f.targetPower
	}
	if flags.Changed("effect-size") {
		req.EffectSize = f.effectSize
	}
	if flags.Changed("alpha") {
		req.Alpha = f.alpha
	}
	if f.interactions {
		req.Interactions = true
	}

	res, err := opts.service().Optimize(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func runValidate(cmd *cobra.Command, opts *rootOptions, file string) error {
	var p api.ValidateParams
	if err := readRequest(cmd, file, &p); err != nil {
		return err
	}
	if err := api.Check(p); err != nil {
		return err
	}

	report, err := opts.service().Validate(cmd.Context(), p.Design(), p.Grid, p.Constraints)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("design has %d constraint violations", len(report.Violations))
	}
	return nil
}

func runEvaluate(cmd *cobra.Command, opts *rootOptions, file string) error {
	var p api.EvaluateParams
	if err := readRequest(cmd, file, &p); err != nil {
		return err
	}
	if err := api.Check(p); err != nil {
		return err
	}

	report, err := opts.service().Evaluate(cmd.Context(), api.ValidateParams{Tasks: p.Tasks}.Design(), p.Grid)
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

func runExport(cmd *cobra.Command, opts *rootOptions, f *exportFlags) error {
	var p api.ExportParams
	if err := readRequest(cmd, f.file, &p); err != nil {
		return err
	}
	if f.format != "" {
		p.Format = f.format
	}

	res, err := api.Export(cmd.Context(), opts.service(), p)
	if err != nil {
		return err
	}
	opts.log.Info("Design exported", "format", res.Format, "tasks", res.Summary.TotalTasks,
		"options", res.Summary.TotalOptions, "valid", res.Validation.Valid)
	return writeOutput(cmd, opts, f.out, res.Content)
}

func runMCP(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()

	var store catalog.StudyStore = catalog.NewInMemoryStudyStore()
	if url := opts.cfg.Database.URL; url != "" {
		db, err := catalog.OpenDB(ctx, url, opts.cfg.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				opts.log.Warn("Failed to close database", "error", err)
			}
		}()
		store = catalog.NewPostgresStudyStore(db)
	}

	cat, err := catalog.NewCatalog(store, catalog.CacheConfig{TTL: opts.cfg.Catalog.CacheTTL}, opts.log)
	if err != nil {
		return fmt.Errorf("failed to load studies: %w", err)
	}

	mcptools.Version = version
	srv := mcptools.New(opts.service(), cat, opts.log)
	opts.log.Info("MCP server listening on stdio", "postgres", opts.cfg.Database.URL != "")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

// readRequest loads a YAML or JSON request file into v. The document is
// converted to JSON first so the json tags are the single source of field
// names, and unknown fields are rejected.
func readRequest(cmd *cobra.Command, path string, v any) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read request %s: %w", path, err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse request %s: %w", path, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to parse request %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", api.ErrInvalidParams, path, err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(cmd *cobra.Command, opts *rootOptions, path, content string) error {
	if path == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	opts.log.Info("Output written", "path", path, "bytes", len(content))
	return nil
}
