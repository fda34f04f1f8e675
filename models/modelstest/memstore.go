// Package modelstest holds an in-memory store with the same behaviour as
// models.Store, so engine code can be tested without MySQL.
package modelstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
)

type MemStore struct {
	mu sync.Mutex

	nextID      uint
	connections map[uint]*models.Connection
	lines       map[uint]*models.LineRecord
	tasks       map[uint]*models.Task
	catalog     []models.CatalogItem
	drums       map[uint]*models.DrumTracking
	usages      map[uint]*models.DrumUsage

	// ForceUpsert makes BulkUpsertLines report this kind without writing.
	ForceUpsert models.UpsertKind
	// Fail returns the error from the named method, e.g. "CreateLine".
	Fail map[string]error
	// LineWrites counts every line insert or update.
	LineWrites int
	BulkCalls  int
}

func NewMemStore() *MemStore {
	return &MemStore{
		connections: map[uint]*models.Connection{},
		lines:       map[uint]*models.LineRecord{},
		tasks:       map[uint]*models.Task{},
		drums:       map[uint]*models.DrumTracking{},
		usages:      map[uint]*models.DrumUsage{},
		Fail:        map[string]error{},
	}
}

func (m *MemStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *MemStore) fail(method string) error {
	return m.Fail[method]
}

/* connections */

func (m *MemStore) CreateConnection(_ context.Context, input *models.NewConnection) (*models.Connection, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.connections {
		if c.Month == input.Month && c.Year == input.Year {
			c.SheetId, c.SheetTab, c.SecondaryTab = input.SheetId, input.SheetTab, input.SecondaryTab
			c.Status, c.LastError = models.ConnectionStatusActive, ""
			out := *c
			return &out, nil
		}
	}
	c := &models.Connection{
		ID:           m.id(),
		Month:        input.Month,
		Year:         input.Year,
		SheetId:      input.SheetId,
		SheetTab:     input.SheetTab,
		SecondaryTab: input.SecondaryTab,
		Status:       models.ConnectionStatusActive,
		CreatedAt:    time.Now(),
	}
	m.connections[c.ID] = c
	out := *c
	return &out, nil
}

// PutConnection stores c as is and returns its id.
func (m *MemStore) PutConnection(c models.Connection) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.id()
	}
	if c.Status == "" {
		c.Status = models.ConnectionStatusActive
	}
	m.connections[c.ID] = &c
	return c.ID
}

func (m *MemStore) GetConnection(_ context.Context, id uint) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetConnection"); err != nil {
		return nil, err
	}
	c, ok := m.connections[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *MemStore) GetConnectionByPeriod(_ context.Context, period models.Period) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.connections {
		if c.Month == period.Month && c.Year == period.Year {
			out := *c
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemStore) ListConnections(_ context.Context) ([]models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Connection, 0, len(m.connections))
	for _, c := range m.connections {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, nil
}

func (m *MemStore) DeleteConnection(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.connections, id)
	return nil
}

func (m *MemStore) SetConnectionTab(_ context.Context, id uint, tab string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return models.ErrNotFound
	}
	c.SheetTab = tab
	return nil
}

func (m *MemStore) MarkConnectionSynced(_ context.Context, id uint, recordCount int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return models.ErrNotFound
	}
	c.Status, c.RecordCount, c.LastError = models.ConnectionStatusActive, recordCount, ""
	c.LastSynced = &at
	return nil
}

func (m *MemStore) MarkConnectionError(_ context.Context, id uint, message string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return models.ErrNotFound
	}
	c.Status, c.LastError = models.ConnectionStatusError, message
	c.LastSynced = &at
	return nil
}

/* lines */

func (m *MemStore) sortedLines(keep func(*models.LineRecord) bool) []models.LineRecord {
	var out []models.LineRecord
	for _, l := range m.lines {
		if keep(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InstallDate.Equal(out[j].InstallDate) {
			return out[i].InstallDate.Before(out[j].InstallDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Lines returns every stored line.
func (m *MemStore) Lines() []models.LineRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLines(func(*models.LineRecord) bool { return true })
}

func (m *MemStore) FindLinesInPeriod(_ context.Context, period models.Period) ([]models.LineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindLinesInPeriod"); err != nil {
		return nil, err
	}
	return m.sortedLines(func(l *models.LineRecord) bool { return period.Contains(l.InstallDate) }), nil
}

func (m *MemStore) findByKey(phone string, date time.Time) *models.LineRecord {
	key := models.LineKey(phone, date)
	for _, l := range m.lines {
		if l.Key() == key {
			return l
		}
	}
	return nil
}

func (m *MemStore) FindLineByKey(_ context.Context, phone string, date time.Time) (*models.LineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindLineByKey"); err != nil {
		return nil, err
	}
	l := m.findByKey(phone, date)
	if l == nil {
		return nil, models.ErrNotFound
	}
	out := *l
	return &out, nil
}

func (m *MemStore) CreateLine(_ context.Context, line *models.LineRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateLine"); err != nil {
		return err
	}
	if m.findByKey(line.Telephone, line.InstallDate) != nil {
		return fmt.Errorf("%w: line %s", models.ErrDuplicate, line.Key())
	}
	line.ID = m.id()
	if line.Status == "" {
		line.Status = models.LineStatusCompleted
	}
	stored := *line
	m.lines[line.ID] = &stored
	m.LineWrites++
	return nil
}

func (m *MemStore) UpdateLine(_ context.Context, line *models.LineRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateLine"); err != nil {
		return err
	}
	if _, ok := m.lines[line.ID]; !ok {
		return models.ErrNotFound
	}
	stored := *line
	m.lines[line.ID] = &stored
	m.LineWrites++
	return nil
}

func (m *MemStore) BulkUpsertLines(_ context.Context, lines []*models.LineRecord) models.UpsertResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BulkCalls++
	if m.ForceUpsert != models.UpsertOK {
		return models.UpsertResult{Kind: m.ForceUpsert, Err: fmt.Errorf("forced %s", m.ForceUpsert)}
	}
	if err := m.fail("BulkUpsertLines"); err != nil {
		return models.UpsertResult{Kind: models.UpsertFailed, Err: err}
	}
	seen := map[string]bool{}
	for _, l := range lines {
		if seen[l.Key()] {
			return models.UpsertResult{Kind: models.UpsertRowAffectedTwice, Err: errors.New("row affected twice")}
		}
		seen[l.Key()] = true
	}
	var affected int64
	for _, l := range lines {
		stored := *l
		if existing := m.findByKey(l.Telephone, l.InstallDate); existing != nil {
			stored.ID, stored.Status, stored.CreatedAt = existing.ID, existing.Status, existing.CreatedAt
		} else {
			stored.ID = m.id()
			if stored.Status == "" {
				stored.Status = models.LineStatusCompleted
			}
		}
		m.lines[stored.ID] = &stored
		m.LineWrites++
		affected++
	}
	return models.UpsertResult{Kind: models.UpsertOK, Affected: affected}
}

/* tasks */

func (m *MemStore) Tasks() []models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) FindTaskByLine(_ context.Context, lineID uint) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("FindTaskByLine"); err != nil {
		return nil, err
	}
	for _, t := range m.tasks {
		if t.LineRecordId == lineID {
			out := *t
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemStore) CreateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateTask"); err != nil {
		return err
	}
	for _, t := range m.tasks {
		if t.LineRecordId == task.LineRecordId {
			return fmt.Errorf("%w: task for line %d", models.ErrDuplicate, task.LineRecordId)
		}
	}
	task.ID = m.id()
	stored := *task
	m.tasks[task.ID] = &stored
	return nil
}

/* catalog + drums */

func (m *MemStore) AddCatalogItem(item models.CatalogItem) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	m.catalog = append(m.catalog, item)
	return item.ID
}

func (m *MemStore) ListCatalogItems(_ context.Context) ([]models.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListCatalogItems"); err != nil {
		return nil, err
	}
	return append([]models.CatalogItem(nil), m.catalog...), nil
}

func (m *MemStore) withCatalog(d models.DrumTracking) models.DrumTracking {
	d.CatalogItem = nil
	if d.CatalogItemId != nil {
		for i := range m.catalog {
			if m.catalog[i].ID == *d.CatalogItemId {
				item := m.catalog[i]
				d.CatalogItem = &item
			}
		}
	}
	return d
}

func (m *MemStore) FindDrumsByNumbers(_ context.Context, numbers []string) ([]models.DrumTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	var out []models.DrumTracking
	for _, d := range m.drums {
		if want[d.DrumNumber] {
			out = append(out, m.withCatalog(*d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) CreateDrum(_ context.Context, drum *models.DrumTracking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateDrum"); err != nil {
		return err
	}
	for _, d := range m.drums {
		if d.DrumNumber == drum.DrumNumber {
			return fmt.Errorf("%w: drum %s", models.ErrDuplicate, drum.DrumNumber)
		}
	}
	drum.ID = m.id()
	stored := *drum
	stored.CatalogItem = nil
	m.drums[drum.ID] = &stored
	return nil
}

// PutDrum stores d as is and returns its id.
func (m *MemStore) PutDrum(d models.DrumTracking) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		d.ID = m.id()
	}
	d.CatalogItem = nil
	m.drums[d.ID] = &d
	return d.ID
}

func (m *MemStore) GetDrum(_ context.Context, id uint) (*models.DrumTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drums[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := m.withCatalog(*d)
	return &out, nil
}

func (m *MemStore) GetDrumByNumber(_ context.Context, number string) (*models.DrumTracking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drums {
		if d.DrumNumber == number {
			out := m.withCatalog(*d)
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemStore) ListDrumIDs(_ context.Context) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint, 0, len(m.drums))
	for id := range m.drums {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemStore) SaveDrumAggregate(_ context.Context, drum *models.DrumTracking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SaveDrumAggregate"); err != nil {
		return err
	}
	d, ok := m.drums[drum.ID]
	if !ok {
		return models.ErrNotFound
	}
	d.CurrentQuantity = drum.CurrentQuantity
	d.Status = drum.Status
	d.TotalUsed = drum.TotalUsed
	d.TotalWastage = drum.TotalWastage
	d.RemainingCable = drum.RemainingCable
	d.CalculationMethod = drum.CalculationMethod
	d.CalculatedAt = drum.CalculatedAt
	return nil
}

/* usages */

func (m *MemStore) Usages() []models.DrumUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DrumUsage, 0, len(m.usages))
	for _, u := range m.usages {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemStore) FindUsagesByLines(_ context.Context, lineIDs []uint) ([]models.DrumUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uint]bool, len(lineIDs))
	for _, id := range lineIDs {
		want[id] = true
	}
	var out []models.DrumUsage
	for _, u := range m.usages {
		if want[u.LineRecordId] {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) FindUsagesByDrum(_ context.Context, drumID uint) ([]models.DrumUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DrumUsage
	for _, u := range m.usages {
		if u.DrumTrackingId == drumID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UsageDate.Equal(out[j].UsageDate) {
			return out[i].UsageDate.Before(out[j].UsageDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) SaveUsage(_ context.Context, usage *models.DrumUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SaveUsage"); err != nil {
		return err
	}
	if usage.ID == 0 {
		usage.ID = m.id()
	}
	stored := *usage
	m.usages[usage.ID] = &stored
	return nil
}

func (m *MemStore) DeleteUsage(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.usages, id)
	return nil
}
