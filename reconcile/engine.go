package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/sheet"
	"github.com/sirupsen/logrus"
)

type LineStore interface {
	FindLinesInPeriod(ctx context.Context, period models.Period) ([]models.LineRecord, error)
	FindLineByKey(ctx context.Context, phone string, date time.Time) (*models.LineRecord, error)
	CreateLine(ctx context.Context, line *models.LineRecord) error
	UpdateLine(ctx context.Context, line *models.LineRecord) error
	BulkUpsertLines(ctx context.Context, lines []*models.LineRecord) models.UpsertResult
}

type TaskStore interface {
	FindTaskByLine(ctx context.Context, lineID uint) (*models.Task, error)
	CreateTask(ctx context.Context, task *models.Task) error
}

// Engine merges sheet rows into the store and plans the write-back.
type Engine struct {
	lines  LineStore
	tasks  TaskStore
	schema *sheet.Schema
	prefix string
	logger *logrus.Logger
}

func NewEngine(lines LineStore, tasks TaskStore, prefix string, logger *logrus.Logger) *Engine {
	return &Engine{
		lines:  lines,
		tasks:  tasks,
		schema: sheet.PrimarySchema(),
		prefix: prefix,
		logger: logger,
	}
}

func (e *Engine) Schema() *sheet.Schema {
	return e.schema
}

type UpsertReport struct {
	Merged    int
	Inserted  int
	Updated   int
	Unchanged int
	// Kind is the bulk upsert outcome; Fallback is set when rows were written one by one.
	Kind     models.UpsertKind
	Fallback bool
	// Lines is every record of the period after the write.
	Lines []models.LineRecord
}

// Upsert writes the merged rows. Store values survive blank sheet cells, and
// records that would not change are not written at all.
func (e *Engine) Upsert(ctx context.Context, period models.Period, merged []*MergedRow) (UpsertReport, error) {
	report := UpsertReport{Merged: len(merged)}

	existing, err := e.lines.FindLinesInPeriod(ctx, period)
	if err != nil {
		return report, fmt.Errorf("load lines: %w", err)
	}
	byKey := make(map[string]models.LineRecord, len(existing))
	for _, l := range existing {
		byKey[l.Key()] = l
	}

	var batch []*models.LineRecord
	for _, m := range merged {
		rec, found := byKey[m.Key]
		if !found {
			rec = models.LineRecord{Status: models.LineStatusCompleted}
		}
		before := e.schema.Values(rec)
		vals := append([]sheet.Value(nil), before...)
		mergeValues(e.schema, vals, m.Values)
		if found && e.schema.Equivalent(before, vals) {
			report.Unchanged++
			continue
		}
		e.schema.Apply(vals, &rec)
		rec.Telephone, rec.InstallDate = m.Phone, m.Date
		if found {
			report.Updated++
		} else {
			report.Inserted++
		}
		r := rec
		batch = append(batch, &r)
	}

	if len(batch) > 0 {
		res := e.lines.BulkUpsertLines(ctx, batch)
		report.Kind = res.Kind
		switch res.Kind {
		case models.UpsertOK:
		case models.UpsertConstraintMissing, models.UpsertRowAffectedTwice:
			if e.logger != nil {
				e.logger.WithFields(logrus.Fields{
					"module": "reconcile",
					"kind":   res.Kind.String(),
					"rows":   len(batch),
				}).Warn("bulk upsert rejected, writing rows one by one")
			}
			report.Fallback = true
			if err := e.upsertRows(ctx, batch); err != nil {
				return report, err
			}
		default:
			return report, fmt.Errorf("bulk upsert %d lines: %w", len(batch), res.Err)
		}
	}

	report.Lines, err = e.lines.FindLinesInPeriod(ctx, period)
	if err != nil {
		return report, fmt.Errorf("reload lines: %w", err)
	}
	return report, nil
}

// upsertRows is the sequential path. The first failing row aborts.
func (e *Engine) upsertRows(ctx context.Context, batch []*models.LineRecord) error {
	for _, rec := range batch {
		current, err := e.lines.FindLineByKey(ctx, rec.Telephone, rec.InstallDate)
		switch {
		case errors.Is(err, models.ErrNotFound):
			rec.ID = 0
			rec.Status = models.LineStatusCompleted
			if err := e.lines.CreateLine(ctx, rec); err != nil {
				return &RowError{Key: rec.Key(), Err: err}
			}
		case err != nil:
			return &RowError{Key: rec.Key(), Err: err}
		default:
			rec.ID, rec.Status, rec.CreatedAt = current.ID, current.Status, current.CreatedAt
			if err := e.lines.UpdateLine(ctx, rec); err != nil {
				return &RowError{Key: rec.Key(), Err: err}
			}
		}
	}
	return nil
}

type TaskReport struct {
	Created int
	Failed  int
}

// EnsureTasks keeps one task per line. A duplicate on create means another
// writer got there first and counts as success.
func (e *Engine) EnsureTasks(ctx context.Context, lines []models.LineRecord) (TaskReport, error) {
	var report TaskReport
	var errs []error
	for _, l := range lines {
		_, err := e.tasks.FindTaskByLine(ctx, l.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			report.Failed++
			errs = append(errs, fmt.Errorf("line %d: %w", l.ID, err))
			continue
		}
		task := &models.Task{
			LineRecordId: l.ID,
			Title:        "Installation " + l.Telephone + " " + l.InstallDate.Format(sheet.DateLayout),
			Status:       models.TaskStatusDone,
		}
		switch err := e.tasks.CreateTask(ctx, task); {
		case err == nil:
			report.Created++
		case errors.Is(err, models.ErrDuplicate):
		default:
			report.Failed++
			errs = append(errs, fmt.Errorf("line %d: %w", l.ID, err))
		}
	}
	err := errors.Join(errs...)
	config.LogError(e.logger, "reconcile", "EnsureTasks", "create tasks", report, err)
	return report, err
}
