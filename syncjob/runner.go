package syncjob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/mmdatafocus/fieldops_backend/drum"
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/reconcile"
	"github.com/mmdatafocus/fieldops_backend/sheet"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is everything a pass reads or writes in the relational store.
type Store interface {
	reconcile.LineStore
	reconcile.TaskStore
	drum.Store

	GetConnection(ctx context.Context, id uint) (*models.Connection, error)
	SetConnectionTab(ctx context.Context, id uint, tab string) error
	MarkConnectionSynced(ctx context.Context, id uint, recordCount int, at time.Time) error
	MarkConnectionError(ctx context.Context, id uint, message string, at time.Time) error
}

// Progress is emitted when a step starts and when it finishes.
type Progress struct {
	Step    string
	Message string
	Index   int
	Total   int
}

// Summary is the result of one pass.
type Summary struct {
	ConnectionID uint   `json:"connectionId"`
	Tab          string `json:"tab"`

	Rows      int  `json:"rows"`
	Skipped   int  `json:"skipped"`
	Merged    int  `json:"merged"`
	Inserted  int  `json:"inserted"`
	Updated   int  `json:"updated"`
	Unchanged int  `json:"unchanged"`
	Fallback  bool `json:"fallback"`

	TasksCreated      int `json:"tasksCreated"`
	SecondaryUpdated  int `json:"secondaryUpdated"`
	SecondaryAppended int `json:"secondaryAppended"`
	DrumsCreated      int `json:"drumsCreated"`
	UsagesChanged     int `json:"usagesChanged"`
	DrumsRecalculated int `json:"drumsRecalculated"`
	SheetUpdated      int `json:"sheetUpdated"`
	SheetGapFilled    int `json:"sheetGapFilled"`
	SheetAppended     int `json:"sheetAppended"`

	RecordCount int      `json:"recordCount"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Step is one stage of a pass. A failing advisory step is recorded in the
// summary and the pass goes on; any other failure ends the pass.
type Step struct {
	Name     string
	Advisory bool
	Run      func(ctx context.Context, p *pass) error
}

// pass carries the state handed from one step to the next.
type pass struct {
	connectionID uint
	conn         *models.Connection
	titles       []string
	table        *sheet.Table
	merged       []*reconcile.MergedRow
	lines        []models.LineRecord
	drumNumbers  []string
	summary      Summary
}

type Runner struct {
	store          Store
	client         sheet.Client
	writer         *sheet.Writer
	engine         *reconcile.Engine
	drums          *drum.Service
	policy         config.SyncPolicy
	serviceAccount string
	logger         *logrus.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

func NewRunner(store Store, client sheet.Client, policy config.SyncPolicy, logger *logrus.Logger) (*Runner, error) {
	method, err := drum.ParseMethod(policy.WastageMethod)
	if err != nil {
		return nil, err
	}
	return &Runner{
		store:          store,
		client:         client,
		writer:         sheet.NewWriter(client),
		engine:         reconcile.NewEngine(store, store, policy.AreaPrefix, logger),
		drums:          drum.NewService(store, method, policy.LowStockThreshold, logger),
		policy:         policy,
		serviceAccount: config.ServiceAccountEmail(),
		logger:         logger,
		tracer:         otel.Tracer("github.com/mmdatafocus/fieldops_backend/syncjob"),
		now:            time.Now,
	}, nil
}

// Drums exposes the ledger service the runner recalculates with.
func (r *Runner) Drums() *drum.Service {
	return r.drums
}

func (r *Runner) steps() []Step {
	return []Step{
		{Name: "load_connection", Run: r.loadConnection},
		{Name: "read_sheet", Run: r.readSheet},
		{Name: "merge", Run: r.merge},
		{Name: "upsert_lines", Run: r.upsertLines},
		{Name: "ensure_tasks", Advisory: true, Run: r.ensureTasks},
		{Name: "secondary_tab", Advisory: true, Run: r.syncSecondary},
		{Name: "drum_ledger", Advisory: true, Run: r.syncDrums},
		{Name: "write_back", Advisory: true, Run: r.writeBack},
		{Name: "update_connection", Run: r.markSynced},
	}
}

// Run executes one reconciliation pass for the connection. progress may be nil;
// sends are abandoned when ctx is done.
func (r *Runner) Run(ctx context.Context, connectionID uint, progress chan<- Progress) (Summary, error) {
	ctx, span := r.tracer.Start(ctx, "syncjob.Run", trace.WithAttributes(attribute.Int64("connection.id", int64(connectionID))))
	defer span.End()

	p := &pass{connectionID: connectionID, summary: Summary{ConnectionID: connectionID}}
	steps := r.steps()
	for i, step := range steps {
		emit(ctx, progress, Progress{Step: step.Name, Message: "started", Index: i + 1, Total: len(steps)})

		stepCtx, stepSpan := r.tracer.Start(ctx, "syncjob."+step.Name)
		err := step.Run(stepCtx, p)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
		}
		stepSpan.End()

		if err == nil {
			emit(ctx, progress, Progress{Step: step.Name, Message: "done", Index: i + 1, Total: len(steps)})
			continue
		}
		if step.Advisory {
			config.LogError(r.logger, "syncjob", step.Name, "advisory step failed", connectionID, err)
			p.summary.Warnings = append(p.summary.Warnings, step.Name+": "+err.Error())
			emit(ctx, progress, Progress{Step: step.Name, Message: "failed: " + err.Error(), Index: i + 1, Total: len(steps)})
			continue
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.fail(ctx, p, step.Name, err)
		return p.summary, err
	}
	return p.summary, nil
}

func emit(ctx context.Context, progress chan<- Progress, ev Progress) {
	if progress == nil {
		return
	}
	select {
	case progress <- ev:
	case <-ctx.Done():
	}
}

// fail records a fatal error on the connection. Validation errors leave the
// connection as it was.
func (r *Runner) fail(ctx context.Context, p *pass, step string, err error) {
	config.LogError(r.logger, "syncjob", step, "sync pass failed", p.connectionID, err)
	var verr *reconcile.ValidationError
	if errors.As(err, &verr) || p.conn == nil {
		return
	}
	if markErr := r.store.MarkConnectionError(ctx, p.conn.ID, err.Error(), r.now()); markErr != nil {
		config.LogError(r.logger, "syncjob", step, "mark connection error", p.conn.ID, markErr)
	}
}

func (r *Runner) loadConnection(ctx context.Context, p *pass) error {
	conn, err := r.store.GetConnection(ctx, p.connectionID)
	if errors.Is(err, models.ErrNotFound) {
		return &reconcile.ValidationError{Op: "load connection", Err: err}
	}
	if err != nil {
		return fmt.Errorf("load connection %d: %w", p.connectionID, err)
	}
	p.conn = conn
	return nil
}

// readSheet resolves the primary tab, reads it and validates the header. The
// first tab is used and remembered when the connection names none.
func (r *Runner) readSheet(ctx context.Context, p *pass) error {
	titles, err := r.client.TabTitles(ctx, p.conn.SheetId)
	if err != nil {
		return reconcile.ClassifyProviderErr("list tabs", err, r.serviceAccount)
	}
	p.titles = titles

	tab := strings.TrimSpace(p.conn.SheetTab)
	resolved := tab == ""
	if resolved {
		if len(titles) == 0 {
			return &reconcile.ValidationError{Op: "resolve tab", Err: reconcile.ErrTabNotFound}
		}
		tab = titles[0]
	} else if !hasTab(titles, tab) {
		return &reconcile.ValidationError{Op: "resolve tab", Err: fmt.Errorf("%w: %q", reconcile.ErrTabNotFound, tab)}
	}

	values, err := r.client.ReadTab(ctx, p.conn.SheetId, tab)
	if err != nil {
		return reconcile.ClassifyProviderErr("read tab "+tab, err, r.serviceAccount)
	}
	tbl, err := sheet.ParsePrimary(tab, values, p.conn.Period(), r.policy.AreaPrefix)
	if err != nil {
		var herr *sheet.HeaderError
		if errors.As(err, &herr) || errors.Is(err, sheet.ErrEmptyTab) {
			return &reconcile.ValidationError{Op: "read tab " + tab, Err: err}
		}
		return err
	}
	for _, s := range tbl.Skipped {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"module": "syncjob",
				"row":    s.SheetRow,
				"phone":  s.Phone,
			}).Warn("skipped sheet row: " + s.Reason)
		}
	}

	if resolved {
		if err := r.store.SetConnectionTab(ctx, p.conn.ID, tab); err != nil {
			return fmt.Errorf("remember tab: %w", err)
		}
		p.conn.SheetTab = tab
	}
	p.table = tbl
	p.summary.Tab = tab
	p.summary.Rows = len(tbl.Rows)
	p.summary.Skipped = len(tbl.Skipped)
	return nil
}

func hasTab(titles []string, tab string) bool {
	for _, t := range titles {
		if t == tab {
			return true
		}
	}
	return false
}

func (r *Runner) merge(_ context.Context, p *pass) error {
	p.merged = reconcile.Merge(r.engine.Schema(), p.table.Rows)
	p.summary.Merged = len(p.merged)
	return nil
}

func (r *Runner) upsertLines(ctx context.Context, p *pass) error {
	report, err := r.engine.Upsert(ctx, p.conn.Period(), p.merged)
	p.summary.Inserted = report.Inserted
	p.summary.Updated = report.Updated
	p.summary.Unchanged = report.Unchanged
	p.summary.Fallback = report.Fallback
	if err != nil {
		return err
	}
	p.lines = report.Lines
	return nil
}

func (r *Runner) ensureTasks(ctx context.Context, p *pass) error {
	report, err := r.engine.EnsureTasks(ctx, p.lines)
	p.summary.TasksCreated = report.Created
	return err
}

func (r *Runner) syncSecondary(ctx context.Context, p *pass) error {
	tab := strings.TrimSpace(p.conn.SecondaryTab)
	if tab == "" {
		tab = r.policy.SecondaryTab
	}
	if tab == "" || tab == p.summary.Tab {
		return nil
	}
	if !hasTab(p.titles, tab) {
		return fmt.Errorf("%w: %q", reconcile.ErrTabNotFound, tab)
	}
	values, err := r.client.ReadTab(ctx, p.conn.SheetId, tab)
	if err != nil {
		return reconcile.ClassifyProviderErr("read tab "+tab, err, r.serviceAccount)
	}
	tbl, err := sheet.ParseSecondary(tab, values, r.policy.AreaPrefix)
	if err != nil {
		return err
	}

	report, plan, syncErr := r.engine.SyncSecondary(ctx, tbl, p.lines)
	p.summary.SecondaryUpdated = report.Updated
	p.drumNumbers = report.DrumNumbers
	if err := r.writer.Apply(ctx, p.conn.SheetId, plan); err != nil {
		return errors.Join(syncErr, reconcile.ClassifyProviderErr("write tab "+tab, err, r.serviceAccount))
	}
	p.summary.SecondaryAppended = report.Appended
	return syncErr
}

// syncDrums registers every drum the period mentions, keeps one usage per
// line and recomputes the drums involved.
func (r *Runner) syncDrums(ctx context.Context, p *pass) error {
	numbers := append([]string(nil), p.drumNumbers...)
	for _, l := range p.lines {
		numbers = append(numbers, l.DrumNumber)
	}
	ensured, err := r.drums.EnsureDrums(ctx, numbers)
	p.summary.DrumsCreated = ensured.Created
	if err != nil {
		return err
	}

	usage, usageErr := r.drums.SyncUsages(ctx, p.lines, ensured.Drums)
	p.summary.UsagesChanged = usage.Created + usage.Updated + usage.Deleted

	ids := map[uint]bool{}
	for _, id := range usage.Touched {
		ids[id] = true
	}
	for _, d := range ensured.Drums {
		ids[d.ID] = true
	}
	outcomes, recalcErr := r.drums.Recalculate(ctx, sortedIDs(ids))
	p.summary.DrumsRecalculated = len(outcomes)
	return errors.Join(usageErr, recalcErr)
}

func (r *Runner) writeBack(ctx context.Context, p *pass) error {
	plan := r.engine.PlanWriteBack(p.table, p.lines)
	if err := r.writer.Apply(ctx, p.conn.SheetId, plan); err != nil {
		return reconcile.ClassifyProviderErr("write tab "+plan.Tab, err, r.serviceAccount)
	}
	p.summary.SheetUpdated = len(plan.Updates)
	p.summary.SheetGapFilled = len(plan.GapFills)
	p.summary.SheetAppended = len(plan.Appends)
	return nil
}

func (r *Runner) markSynced(ctx context.Context, p *pass) error {
	p.summary.RecordCount = len(p.lines)
	if err := r.store.MarkConnectionSynced(ctx, p.conn.ID, len(p.lines), r.now()); err != nil {
		return fmt.Errorf("mark connection synced: %w", err)
	}
	return nil
}

func sortedIDs(set map[uint]bool) []uint {
	out := make([]uint, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
