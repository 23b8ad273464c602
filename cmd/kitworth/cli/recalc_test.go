package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kitworth/kitworth/internal/pricing"
)

type fakeRecomputer struct {
	stats pricing.Stats
	err   error
	opts  pricing.RecomputeOptions
}

func (f *fakeRecomputer) Recompute(ctx context.Context, opts pricing.RecomputeOptions) (pricing.Stats, error) {
	f.opts = opts
	return f.stats, f.err
}

func TestRecalcCommandSuccess(t *testing.T) {
	rec := &fakeRecomputer{stats: pricing.Stats{StandaloneUpdated: 3, ProratedUpdated: 7, Skipped: 1, ProductsProcessed: 4}}
	var stdout, stderr bytes.Buffer

	code := NewRecalcCLI(rec).RecalcCommand(context.Background(), RecalcOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "standalone prices updated: 3")
	require.Contains(t, stdout.String(), "prorated prices updated:   7")
	require.Empty(t, stderr.String())
}

func TestRecalcCommandJSON(t *testing.T) {
	rec := &fakeRecomputer{stats: pricing.Stats{StandaloneUpdated: 2, ProductsProcessed: 1}}
	var stdout bytes.Buffer

	code := NewRecalcCLI(rec).RecalcCommand(context.Background(), RecalcOptions{JSONOutput: true, Stdout: &stdout})
	require.Equal(t, 0, code)

	var summary map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, float64(2), summary["standalone_updated"])
	require.Equal(t, float64(1), summary["products_processed"])
}

func TestRecalcCommandBusy(t *testing.T) {
	rec := &fakeRecomputer{err: pricing.ErrBusy}
	var stderr bytes.Buffer

	code := NewRecalcCLI(rec).RecalcCommand(context.Background(), RecalcOptions{Stderr: &stderr})
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "already running")
}

func TestRecalcCommandPassesFlags(t *testing.T) {
	rec := &fakeRecomputer{}
	var stdout bytes.Buffer

	opts, err := ParseRecalcFlags([]string{"--dry-run", "--verbose"})
	require.NoError(t, err)
	opts.Stdout = &stdout

	code := NewRecalcCLI(rec).RecalcCommand(context.Background(), opts)
	require.Equal(t, 0, code)
	require.True(t, rec.opts.DryRun)
	require.True(t, rec.opts.Verbose)
	require.Contains(t, stdout.String(), "dry run")
}

func TestRecalcCommandSurfacesWarnings(t *testing.T) {
	rec := &fakeRecomputer{stats: pricing.Stats{ProductsProcessed: 3, Errors: []string{"skipping Kit: degenerate weights"}}}
	var stdout, stderr bytes.Buffer

	// Recoverable per-product problems are reported but the run still
	// succeeds; only fatal errors and a held lock exit nonzero.
	code := NewRecalcCLI(rec).RecalcCommand(context.Background(), RecalcOptions{Stdout: &stdout, Stderr: &stderr})
	require.Equal(t, 0, code)
	require.Contains(t, stderr.String(), "degenerate weights")
	require.Contains(t, stdout.String(), "products processed:        3")
}
