package ali

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/lgessler/ali/pkg/tsv"
)

// Main is the entry point for the ali application. It parses args, builds
// the App, and dispatches the command. Callable directly from tests without
// building the binary.
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	switch c := cmd.(type) {
	case *RunCommand:
		app, err := New(ctx, config, log)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		defer app.Close()
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *ImportCommand:
		// Import only fetches and parses; it needs no database connection.
		importer := tsv.NewImporter(config.ImportBaseURL, nil)
		report, err := importer.Import(ctx, c.URL, c.Filename)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		log.Info().Str("summary", report.Summary()).Msg("import finished")
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}
