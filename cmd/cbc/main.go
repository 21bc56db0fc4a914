// Package main provides the cbc command-line tool for building
// choice-based conjoint designs.
//
// # Basic Usage
//
// Generate a design and write it as CSV:
//
//	cbc generate -f laptop.yaml --format csv --out design.csv
//
// Size a study for a target power:
//
//	cbc optimize -f laptop.yaml --target-power 0.9
//
// Check a design produced elsewhere:
//
//	cbc validate -f fielded.yaml
//
// Serve the design tools to an MCP client over stdio:
//
//	cbc mcp
//
// Request files may be YAML or JSON. A file name of "-" reads standard input.
//
// # Environment Variables
//
//   - CBC_CONFIG: Path to configuration file (default: cbc.yaml)
//   - DATABASE_URL: Postgres connection string for saved studies
//   - LOG_LEVEL: trace, debug, info, warning, error or fatal
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/halderavik/cbc-design-MCP/internal/logger"
)

// Populated by ldflags during build.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := buildRootCmd().ExecuteContext(ctx)
	stop()
	logger.Shutdown(context.Background())
	if err != nil {
		os.Exit(1)
	}
}
