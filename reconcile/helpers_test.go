package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/models/modelstest"
	"github.com/mmdatafocus/fieldops_backend/reconcile"
	"github.com/mmdatafocus/fieldops_backend/sheet"
	"github.com/mmdatafocus/fieldops_backend/sheet/sheettest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	prefix  = "034"
	sheetID = "1AbCdEfGhIjKlMnOp"
)

var period = models.Period{Month: 8, Year: 2024}

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

func aug(day int) time.Time {
	return time.Date(2024, 8, day, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func parse(t *testing.T, values [][]string) *sheet.Table {
	t.Helper()
	tbl, err := sheet.ParsePrimary("Aug", values, period, prefix)
	require.NoError(t, err)
	return tbl
}

type pass struct {
	upsert reconcile.UpsertReport
	plan   sheet.Plan
}

// runPass reads the tab, upserts and writes back, the way a sync job does.
func runPass(t *testing.T, engine *reconcile.Engine, fake *sheettest.Fake) pass {
	t.Helper()
	ctx := context.Background()
	values, err := fake.ReadTab(ctx, sheetID, "Aug")
	require.NoError(t, err)
	tbl := parse(t, values)

	report, err := engine.Upsert(ctx, period, reconcile.Merge(engine.Schema(), tbl.Rows))
	require.NoError(t, err)

	plan := engine.PlanWriteBack(tbl, report.Lines)
	require.NoError(t, sheet.NewWriter(fake).Apply(ctx, sheetID, plan))
	return pass{upsert: report, plan: plan}
}

func newEngine(store *modelstest.MemStore) *reconcile.Engine {
	return reconcile.NewEngine(store, store, prefix, nil)
}
