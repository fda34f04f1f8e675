package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/models/modelstest"
	"github.com/mmdatafocus/fieldops_backend/reconcile"
	"github.com/mmdatafocus/fieldops_backend/sheet"
	"github.com/mmdatafocus/fieldops_backend/sheet/sheettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeDuplicateRows(t *testing.T) {
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"No": "1", "Number": "0711234567", "Date": "5", "Name": "Alice", "Retainers": "3"}),
		rowWith(h, map[string]string{"No": "2", "Number": "071-123-4567", "Date": "8/5", "DP": "HR-PKJ-0536-021-05", "Retainers": "0", "C-Hook": "5"}),
		rowWith(h, map[string]string{"No": "3", "Number": "0719999999", "Date": "6"}),
		rowWith(h, map[string]string{"No": "4", "Number": "0711234567", "Date": "5", "Name": "Alice B", "Retainers": "4"}),
	})
	schema := sheet.PrimarySchema()

	merged := reconcile.Merge(schema, tbl.Rows)
	require.Len(t, merged, 2)
	first := merged[0]
	assert.Equal(t, []int{2, 3, 5}, first.SheetRows)

	var rec models.LineRecord
	schema.Apply(first.Values, &rec)
	assert.Equal(t, "Alice B", rec.CustomerName)
	assert.Equal(t, "HR-PKJ-0536-021-05", rec.Dp)
	assert.Equal(t, "4", rec.Retainers.String())
	assert.Equal(t, "5", rec.CHook.String())
	assert.True(t, aug(5).Equal(rec.InstallDate))
}

// Scenario C: one duplicate supplies the name, the other the DP.
func TestMergeFillsBlanksFromEitherDuplicate(t *testing.T) {
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"Number": "0711234567", "Date": "12", "Name": "Alice"}),
		rowWith(h, map[string]string{"Number": "0711234567", "Date": "12", "DP": "HR-PKJ-0536-021-05"}),
	})
	merged := reconcile.Merge(sheet.PrimarySchema(), tbl.Rows)
	require.Len(t, merged, 1)

	var rec models.LineRecord
	sheet.PrimarySchema().Apply(merged[0].Values, &rec)
	assert.Equal(t, "Alice", rec.CustomerName)
	assert.Equal(t, "HR-PKJ-0536-021-05", rec.Dp)
}

func TestUpsertInsertsThenSkipsUnchanged(t *testing.T) {
	store := modelstest.NewMemStore()
	engine := newEngine(store)
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"Number": "0711234567", "Date": "1", "Cable Start": "500", "Cable Middle": "300", "Cable End": "100"}),
		rowWith(h, map[string]string{"Number": "1234567", "Date": "2", "Name": "Bob"}),
	})
	merged := reconcile.Merge(engine.Schema(), tbl.Rows)

	first, err := engine.Upsert(context.Background(), period, merged)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, models.UpsertOK, first.Kind)
	require.Len(t, first.Lines, 2)
	assert.Equal(t, "400", first.Lines[0].Total.String())
	assert.Equal(t, models.LineStatusCompleted, first.Lines[0].Status)
	assert.Equal(t, "0341234567", first.Lines[1].Telephone)

	second, err := engine.Upsert(context.Background(), period, merged)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Unchanged)
	assert.Equal(t, 1, store.BulkCalls)
}

func TestUpsertKeepsStoreValuesUnderBlankCells(t *testing.T) {
	store := modelstest.NewMemStore()
	require.NoError(t, store.CreateLine(context.Background(), &models.LineRecord{
		Telephone:    "0711234567",
		InstallDate:  aug(3),
		CustomerName: "Alice",
		Retainers:    dec("2"),
	}))
	engine := newEngine(store)
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"Number": "0711234567", "Date": "3", "DP": "P-1", "Retainers": "0"}),
	})

	report, err := engine.Upsert(context.Background(), period, reconcile.Merge(engine.Schema(), tbl.Rows))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "Alice", report.Lines[0].CustomerName)
	assert.Equal(t, "P-1", report.Lines[0].Dp)
	assert.Equal(t, "2", report.Lines[0].Retainers.String())
}

func TestUpsertFallsBackRowByRow(t *testing.T) {
	for _, kind := range []models.UpsertKind{models.UpsertConstraintMissing, models.UpsertRowAffectedTwice} {
		t.Run(kind.String(), func(t *testing.T) {
			store := modelstest.NewMemStore()
			require.NoError(t, store.CreateLine(context.Background(), &models.LineRecord{
				Telephone: "0711234567", InstallDate: aug(3), Status: models.LineStatusPending,
			}))
			store.ForceUpsert = kind
			engine := newEngine(store)
			h := header()
			tbl := parse(t, [][]string{
				h,
				rowWith(h, map[string]string{"Number": "0711234567", "Date": "3", "Name": "Alice"}),
				rowWith(h, map[string]string{"Number": "0712222222", "Date": "4", "Name": "Bob"}),
			})

			report, err := engine.Upsert(context.Background(), period, reconcile.Merge(engine.Schema(), tbl.Rows))
			require.NoError(t, err)
			assert.True(t, report.Fallback)
			assert.Equal(t, kind, report.Kind)
			require.Len(t, report.Lines, 2)
			assert.Equal(t, "Alice", report.Lines[0].CustomerName)
			assert.Equal(t, models.LineStatusPending, report.Lines[0].Status)
			assert.Equal(t, models.LineStatusCompleted, report.Lines[1].Status)
		})
	}
}

func TestUpsertFallbackRowFailureIsFatal(t *testing.T) {
	store := modelstest.NewMemStore()
	store.ForceUpsert = models.UpsertConstraintMissing
	store.Fail["CreateLine"] = errors.New("disk full")
	engine := newEngine(store)
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"Number": "0711234567", "Date": "3"}),
	})

	_, err := engine.Upsert(context.Background(), period, reconcile.Merge(engine.Schema(), tbl.Rows))
	var rowErr *reconcile.RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Contains(t, rowErr.Key, "0711234567")
	assert.Empty(t, store.Lines())
}

func TestUpsertFailedKindDoesNotFallBack(t *testing.T) {
	store := modelstest.NewMemStore()
	store.ForceUpsert = models.UpsertFailed
	engine := newEngine(store)
	h := header()
	tbl := parse(t, [][]string{h, rowWith(h, map[string]string{"Number": "0711234567", "Date": "3"})})

	_, err := engine.Upsert(context.Background(), period, reconcile.Merge(engine.Schema(), tbl.Rows))
	require.Error(t, err)
	assert.Zero(t, store.LineWrites)
}

func TestEnsureTasks(t *testing.T) {
	store := modelstest.NewMemStore()
	ctx := context.Background()
	for i, phone := range []string{"0711111111", "0712222222"} {
		require.NoError(t, store.CreateLine(ctx, &models.LineRecord{Telephone: phone, InstallDate: aug(i + 1)}))
	}
	engine := newEngine(store)
	lines := store.Lines()

	report, err := engine.EnsureTasks(ctx, lines)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)

	report, err = engine.EnsureTasks(ctx, lines)
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Len(t, store.Tasks(), 2)
}

func TestEnsureTasksToleratesDuplicatesAndReportsFailures(t *testing.T) {
	store := modelstest.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateLine(ctx, &models.LineRecord{Telephone: "0711111111", InstallDate: aug(1)}))
	engine := newEngine(store)

	store.Fail["CreateTask"] = fmt.Errorf("%w: raced", models.ErrDuplicate)
	report, err := engine.EnsureTasks(ctx, store.Lines())
	require.NoError(t, err)
	assert.Zero(t, report.Failed)

	delete(store.Fail, "CreateTask")
	store.Fail["FindTaskByLine"] = errors.New("connection reset")
	report, err = engine.EnsureTasks(ctx, store.Lines())
	require.Error(t, err)
	assert.Equal(t, 1, report.Failed)
}

// Scenario D: an unmatched record fills the gap row and keeps its sequence number.
func TestPlanWriteBackFillsGapRows(t *testing.T) {
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"No": "1", "Number": "0711111111", "Date": "1"}),
		rowWith(h, map[string]string{"No": "2"}),
		rowWith(h, map[string]string{"No": "", "Number": "0713333333", "Date": "3"}),
	})
	engine := newEngine(modelstest.NewMemStore())
	lines := []models.LineRecord{
		{ID: 1, Telephone: "0711111111", InstallDate: aug(1)},
		{ID: 2, Telephone: "0712222222", InstallDate: aug(2), CustomerName: "Bob"},
		{ID: 3, Telephone: "0713333333", InstallDate: aug(3), Dp: "P-3"},
		{ID: 4, Telephone: "0714444444", InstallDate: aug(4)},
	}

	plan := engine.PlanWriteBack(tbl, lines)

	require.Len(t, plan.GapFills, 1)
	gap := plan.GapFills[0]
	assert.Equal(t, 3, gap.SheetRow)
	assert.Equal(t, "2", gap.Values[0])
	assert.Contains(t, gap.Values, "'0712222222")
	assert.Contains(t, gap.Values, "Bob")

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, 4, plan.Updates[0].SheetRow)
	assert.Equal(t, "", plan.Updates[0].Values[0])
	assert.Contains(t, plan.Updates[0].Values, "P-3")

	require.Len(t, plan.Appends, 1)
	assert.Equal(t, "3", plan.Appends[0][0])
	assert.Contains(t, plan.Appends[0], "'0714444444")
}

func TestPlanWriteBackPrefersSameDateRow(t *testing.T) {
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"No": "1", "Number": "0711111111", "Date": "12"}),
	})
	engine := newEngine(modelstest.NewMemStore())
	lines := []models.LineRecord{
		{ID: 1, Telephone: "0711111111", InstallDate: aug(10)},
		{ID: 2, Telephone: "0711111111", InstallDate: aug(12)},
	}
	plan := engine.PlanWriteBack(tbl, lines)
	assert.Empty(t, plan.Updates)
	require.Len(t, plan.Appends, 1)
	assert.Contains(t, plan.Appends[0], "2024-08-10")
}

func TestPlanWriteBackLeavesUndatedRowsAlone(t *testing.T) {
	h := header()
	tbl := parse(t, [][]string{
		h,
		rowWith(h, map[string]string{"No": "1", "Number": "0711111111", "Date": "pending", "Name": "Crew note"}),
	})
	require.Len(t, tbl.Skipped, 1)

	engine := newEngine(modelstest.NewMemStore())
	lines := []models.LineRecord{
		{ID: 1, Telephone: "0711111111", InstallDate: aug(5), CustomerName: "Alice"},
	}
	plan := engine.PlanWriteBack(tbl, lines)
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.GapFills)
	require.Len(t, plan.Appends, 1)
	assert.Equal(t, "2", plan.Appends[0][0])
	assert.Contains(t, plan.Appends[0], "Alice")
}

func TestReconcileTwiceIsIdempotent(t *testing.T) {
	store := modelstest.NewMemStore()
	require.NoError(t, store.CreateLine(context.Background(), &models.LineRecord{
		Telephone: "0341112222", InstallDate: aug(20), Retainers: dec("2"),
	}))
	h := header()
	fake := sheettest.New()
	fake.SetTab("Aug", [][]string{
		h,
		rowWith(h, map[string]string{"No": "1", "Number": "0711234567", "Date": "5", "Name": "Alice"}),
		rowWith(h, map[string]string{"No": "2", "Number": "0711234567", "Date": "5", "DP": "HR-PKJ-0536-021-05"}),
		rowWith(h, map[string]string{"No": "3"}),
		rowWith(h, map[string]string{"No": "4", "Number": "1234567", "Date": "8/3", "Cable Start": "30", "Cable Middle": "10"}),
	})
	engine := newEngine(store)

	first := runPass(t, engine, fake)
	assert.Equal(t, 2, first.upsert.Inserted)
	assert.Len(t, first.plan.Updates, 1)
	assert.Len(t, first.plan.GapFills, 1)
	assert.Empty(t, first.plan.Appends)
	rowsAfterFirst := len(fake.Tab("Aug"))
	writes := store.LineWrites

	second := runPass(t, engine, fake)
	assert.Zero(t, second.upsert.Inserted)
	assert.Zero(t, second.upsert.Updated)
	assert.True(t, second.plan.Empty(), "second pass planned %+v", second.plan)
	assert.Equal(t, rowsAfterFirst, len(fake.Tab("Aug")))
	assert.Equal(t, writes, store.LineWrites)
	assert.Len(t, store.Lines(), 3)
}
