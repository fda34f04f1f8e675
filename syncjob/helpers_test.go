package syncjob_test

import (
	"testing"

	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/models/modelstest"
	"github.com/mmdatafocus/fieldops_backend/sheet"
	"github.com/mmdatafocus/fieldops_backend/sheet/sheettest"
	"github.com/mmdatafocus/fieldops_backend/syncjob"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const sheetID = "1AbCdEfGhIjKlMnOp"

var secondaryHeader = []string{"No", "TP", "DW DP", "DW C HOOK", "DW CUS", "DRUM NUMBER"}

func header() []string {
	return append([]string{"No"}, sheet.PrimarySchema().RequiredHeaders()...)
}

func rowWith(h []string, cells map[string]string) []string {
	out := make([]string, len(h))
	for i, name := range h {
		out[i] = cells[name]
	}
	return out
}

type fixture struct {
	store  *modelstest.MemStore
	fake   *sheettest.Fake
	runner *syncjob.Runner
	connID uint
}

// newFixture seeds an August 2024 connection whose spreadsheet holds one
// installation on drum D-1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := modelstest.NewMemStore()
	store.AddCatalogItem(models.CatalogItem{Name: "Drop Wire 2km", RatedCapacity: decimal.RequireFromString("2000")})
	connID := store.PutConnection(models.Connection{Month: 8, Year: 2024, SheetId: sheetID})

	h := header()
	fake := sheettest.New()
	fake.SetTab("Aug", [][]string{
		h,
		rowWith(h, map[string]string{"No": "1", "Number": "0711111111", "Date": "1", "Cable Start": "0", "Cable End": "500", "Total": "500"}),
	})
	fake.SetTab("DW", [][]string{
		secondaryHeader,
		{"1", "0711111111", "DP-7", "3", "U Ba", "D-1"},
	})

	runner, err := syncjob.NewRunner(store, fake, config.DefaultSyncPolicy(), nil)
	require.NoError(t, err)
	return &fixture{store: store, fake: fake, runner: runner, connID: connID}
}
