package pricing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kitworth/kitworth/internal/catalog"
)

func TestHistoryPagination(t *testing.T) {
	repo := newTestRepo()
	component := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertManualHistory(context.Background(), component, decimal.NewFromInt(int64(10+i)), ""))
	}

	entries, pagination, err := newTestService(repo).History(context.Background(), component, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, 1, pagination.Page)
	require.Equal(t, 20, pagination.PerPage)
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, 1, pagination.TotalPages)
}

func TestRecordManualOverrideRoundsToCents(t *testing.T) {
	repo := newTestRepo()
	component := uuid.New()

	err := newTestService(repo).RecordManualOverride(context.Background(), component, decimal.RequireFromString("19.999"), "curated")
	require.NoError(t, err)

	entries := historyFor(repo, component)
	require.Len(t, entries, 1)
	require.Equal(t, "20.00", entries[0].Price.StringFixed(2))
	require.Equal(t, SourceManual, entries[0].SourceType)
	require.Equal(t, "curated", entries[0].Metadata["note"])
}

func TestLatestStandaloneNotFound(t *testing.T) {
	repo := newTestRepo()
	_, err := newTestService(repo).LatestStandalone(context.Background(), uuid.New())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestServiceLatestListings(t *testing.T) {
	repo := newTestRepo()
	product := uuid.New()
	svc := newTestService(repo)
	now := svc.now()
	fresh := repo.addListing(product, "42.00", now.AddDate(0, 0, -3))
	repo.addListing(product, "40.00", now.AddDate(0, 0, -100))

	latest, err := svc.LatestListings(context.Background(), product, 60)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, fresh.ID, latest[fresh.RetailerID].ID)

	_, err = svc.LatestListings(context.Background(), product, 0)
	require.ErrorIs(t, err, ErrInvalidWindow)
}
