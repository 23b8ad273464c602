// Package cli implements the operator commands shipped with the server
// binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kitworth/kitworth/internal/pricing"
)

// RecalcOptions configures one recompute invocation.
type RecalcOptions struct {
	DryRun     bool
	Verbose    bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ParseRecalcFlags parses the recalc subcommand's arguments.
func ParseRecalcFlags(args []string) (RecalcOptions, error) {
	var opts RecalcOptions
	fs := flag.NewFlagSet("recalc", flag.ContinueOnError)
	fs.BoolVar(&opts.DryRun, "dry-run", false, "compute prices without persisting anything")
	fs.BoolVar(&opts.Verbose, "verbose", false, "log every component decision")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return RecalcOptions{}, err
	}
	return opts, nil
}

// Recomputer runs one pricing pass over the catalog.
type Recomputer interface {
	Recompute(ctx context.Context, opts pricing.RecomputeOptions) (pricing.Stats, error)
}

// RecalcCLI drives a recompute from the command line.
type RecalcCLI struct {
	service Recomputer
}

// NewRecalcCLI constructs RecalcCLI.
func NewRecalcCLI(service Recomputer) *RecalcCLI {
	return &RecalcCLI{service: service}
}

type recalcSummary struct {
	DryRun            bool     `json:"dry_run"`
	StandaloneUpdated int      `json:"standalone_updated"`
	ProratedUpdated   int      `json:"prorated_updated"`
	Skipped           int      `json:"skipped"`
	ProductsProcessed int      `json:"products_processed"`
	Errors            []string `json:"errors,omitempty"`
}

// RecalcCommand executes the recompute and reports the outcome. The exit
// code is 0 on success, 2 when another run holds the lock, 1 on fatal
// errors. Per-product warnings collected in the run statistics are printed
// but do not fail the run.
func (c *RecalcCLI) RecalcCommand(ctx context.Context, opts RecalcOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	stats, err := c.service.Recompute(ctx, pricing.RecomputeOptions{DryRun: opts.DryRun, Verbose: opts.Verbose})
	if errors.Is(err, pricing.ErrBusy) {
		fmt.Fprintln(opts.Stderr, "recalc: another recompute is already running")
		return 2
	}
	if err != nil {
		fmt.Fprintf(opts.Stderr, "recalc: %v\n", err)
		return 1
	}

	summary := recalcSummary{
		DryRun:            opts.DryRun,
		StandaloneUpdated: stats.StandaloneUpdated,
		ProratedUpdated:   stats.ProratedUpdated,
		Skipped:           stats.Skipped,
		ProductsProcessed: stats.ProductsProcessed,
		Errors:            stats.Errors,
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(opts.Stderr, "recalc: encode summary: %v\n", err)
			return 1
		}
	} else {
		printer := message.NewPrinter(language.English)
		if opts.DryRun {
			printer.Fprintln(opts.Stdout, "dry run, nothing persisted")
		}
		printer.Fprintf(opts.Stdout, "standalone prices updated: %d\n", summary.StandaloneUpdated)
		printer.Fprintf(opts.Stdout, "prorated prices updated:   %d\n", summary.ProratedUpdated)
		printer.Fprintf(opts.Stdout, "skipped:                   %d\n", summary.Skipped)
		printer.Fprintf(opts.Stdout, "products processed:        %d\n", summary.ProductsProcessed)
		for _, problem := range summary.Errors {
			fmt.Fprintf(opts.Stderr, "warning: %s\n", problem)
		}
	}
	return 0
}
