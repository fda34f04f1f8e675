package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/fieldops_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = utils.ErrorRecordNotFound
	ErrDuplicate = errors.New("duplicate record")
)

const lineKeyIndex = "idx_line_phone_date"

// Store is the gorm-backed repository shared by the registry, the
// reconciliation engine and the drum ledger.
type Store struct {
	db *gorm.DB

	upsertColumnsOnce sync.Once
	upsertColumns     []string
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicateKeyErr(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

/* connections */

// CreateConnection registers the spreadsheet for a period, replacing the binding if one exists.
func (s *Store) CreateConnection(ctx context.Context, input *NewConnection) (*Connection, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var conn Connection
	err := db.Where("month = ? AND year = ?", input.Month, input.Year).Take(&conn).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conn = Connection{
			Month:        input.Month,
			Year:         input.Year,
			SheetId:      input.SheetId,
			SheetTab:     input.SheetTab,
			SecondaryTab: input.SecondaryTab,
			Status:       ConnectionStatusActive,
		}
		if err := db.Create(&conn).Error; err != nil {
			return nil, translateErr(err)
		}
		return &conn, nil
	}

	if err := db.Model(&conn).Updates(map[string]interface{}{
		"sheet_id":      input.SheetId,
		"sheet_tab":     input.SheetTab,
		"secondary_tab": input.SecondaryTab,
		"status":        ConnectionStatusActive,
		"last_error":    "",
	}).Error; err != nil {
		return nil, err
	}
	return s.GetConnection(ctx, conn.ID)
}

func (s *Store) GetConnection(ctx context.Context, id uint) (*Connection, error) {
	var conn Connection
	if err := s.db.WithContext(ctx).Take(&conn, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &conn, nil
}

func (s *Store) GetConnectionByPeriod(ctx context.Context, period Period) (*Connection, error) {
	var conn Connection
	if err := s.db.WithContext(ctx).Where("month = ? AND year = ?", period.Month, period.Year).Take(&conn).Error; err != nil {
		return nil, translateErr(err)
	}
	return &conn, nil
}

func (s *Store) ListConnections(ctx context.Context) ([]Connection, error) {
	var conns []Connection
	err := s.db.WithContext(ctx).Order("year DESC, month DESC").Find(&conns).Error
	return conns, err
}

func (s *Store) DeleteConnection(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&Connection{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetConnectionTab(ctx context.Context, id uint, tab string) error {
	return s.db.WithContext(ctx).Model(&Connection{}).Where("id = ?", id).Update("sheet_tab", tab).Error
}

func (s *Store) MarkConnectionSynced(ctx context.Context, id uint, recordCount int, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Connection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       ConnectionStatusActive,
		"last_synced":  at,
		"record_count": recordCount,
		"last_error":   "",
	}).Error
}

func (s *Store) MarkConnectionError(ctx context.Context, id uint, message string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Connection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      ConnectionStatusError,
		"last_synced": at,
		"last_error":  message,
	}).Error
}

/* line records */

func (s *Store) FindLinesInPeriod(ctx context.Context, period Period) ([]LineRecord, error) {
	var lines []LineRecord
	err := s.db.WithContext(ctx).
		Where("install_date >= ? AND install_date < ?", period.Start(), period.End()).
		Order("install_date ASC, id ASC").
		Find(&lines).Error
	return lines, err
}

func (s *Store) FindLineByKey(ctx context.Context, phone string, date time.Time) (*LineRecord, error) {
	var line LineRecord
	err := s.db.WithContext(ctx).
		Where("telephone = ? AND install_date = ?", phone, date).
		Take(&line).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &line, nil
}

func (s *Store) CreateLine(ctx context.Context, line *LineRecord) error {
	return translateErr(s.db.WithContext(ctx).Create(line).Error)
}

func (s *Store) UpdateLine(ctx context.Context, line *LineRecord) error {
	if line.ID == 0 {
		return errors.New("update line: missing id")
	}
	return translateErr(s.db.WithContext(ctx).Save(line).Error)
}

// lineUpsertColumns lists every column an upsert may overwrite: all but the key, id, status and created_at.
func (s *Store) lineUpsertColumns() []string {
	s.upsertColumnsOnce.Do(func() {
		stmt := &gorm.Statement{DB: s.db}
		if err := stmt.Parse(&LineRecord{}); err != nil {
			return
		}
		for _, f := range stmt.Schema.Fields {
			switch f.DBName {
			case "", "id", "telephone", "install_date", "status", "created_at":
				continue
			}
			s.upsertColumns = append(s.upsertColumns, f.DBName)
		}
	})
	return s.upsertColumns
}

// BulkUpsertLines writes all lines in one statement keyed on (telephone, install_date).
// The result kind tells the caller whether a per-row retry can succeed.
func (s *Store) BulkUpsertLines(ctx context.Context, lines []*LineRecord) UpsertResult {
	if len(lines) == 0 {
		return UpsertResult{Kind: UpsertOK}
	}
	if !s.db.Migrator().HasIndex(&LineRecord{}, lineKeyIndex) {
		return UpsertResult{Kind: UpsertConstraintMissing, Err: fmt.Errorf("unique index %s is missing", lineKeyIndex)}
	}
	columns := s.lineUpsertColumns()
	if len(columns) == 0 {
		return UpsertResult{Kind: UpsertFailed, Err: errors.New("could not resolve line record columns")}
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telephone"}, {Name: "install_date"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		CreateInBatches(lines, 200)
	if res.Error != nil {
		return UpsertResult{Kind: classifyUpsertErr(res.Error), Err: res.Error}
	}
	return UpsertResult{Kind: UpsertOK, Affected: res.RowsAffected}
}

func classifyUpsertErr(err error) UpsertKind {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062:
			// Another unique key collided with a row already targeted in this statement.
			return UpsertRowAffectedTwice
		case 1072, 1176:
			return UpsertConstraintMissing
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no unique or exclusion constraint"):
		return UpsertConstraintMissing
	case strings.Contains(msg, "affect row a second time"):
		return UpsertRowAffectedTwice
	}
	return UpsertFailed
}

/* tasks */

func (s *Store) FindTaskByLine(ctx context.Context, lineID uint) (*Task, error) {
	var task Task
	if err := s.db.WithContext(ctx).Where("line_record_id = ?", lineID).Take(&task).Error; err != nil {
		return nil, translateErr(err)
	}
	return &task, nil
}

func (s *Store) CreateTask(ctx context.Context, task *Task) error {
	return translateErr(s.db.WithContext(ctx).Create(task).Error)
}

/* catalog + drums */

func (s *Store) ListCatalogItems(ctx context.Context) ([]CatalogItem, error) {
	var items []CatalogItem
	err := s.db.WithContext(ctx).Order("id ASC").Find(&items).Error
	return items, err
}

func (s *Store) FindDrumsByNumbers(ctx context.Context, numbers []string) ([]DrumTracking, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	var drums []DrumTracking
	err := s.db.WithContext(ctx).Preload("CatalogItem").Where("drum_number IN ?", numbers).Find(&drums).Error
	return drums, err
}

func (s *Store) CreateDrum(ctx context.Context, drum *DrumTracking) error {
	return translateErr(s.db.WithContext(ctx).Omit("CatalogItem").Create(drum).Error)
}

func (s *Store) GetDrum(ctx context.Context, id uint) (*DrumTracking, error) {
	var drum DrumTracking
	if err := s.db.WithContext(ctx).Preload("CatalogItem").Take(&drum, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &drum, nil
}

func (s *Store) GetDrumByNumber(ctx context.Context, number string) (*DrumTracking, error) {
	var drum DrumTracking
	if err := s.db.WithContext(ctx).Preload("CatalogItem").Where("drum_number = ?", number).Take(&drum).Error; err != nil {
		return nil, translateErr(err)
	}
	return &drum, nil
}

func (s *Store) ListDrumIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&DrumTracking{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// SaveDrumAggregate persists the cached aggregate and the derived status.
func (s *Store) SaveDrumAggregate(ctx context.Context, drum *DrumTracking) error {
	return s.db.WithContext(ctx).Model(&DrumTracking{}).Where("id = ?", drum.ID).Updates(map[string]interface{}{
		"current_quantity":   drum.CurrentQuantity,
		"status":             drum.Status,
		"total_used":         drum.TotalUsed,
		"total_wastage":      drum.TotalWastage,
		"remaining_cable":    drum.RemainingCable,
		"calculation_method": drum.CalculationMethod,
		"calculated_at":      drum.CalculatedAt,
	}).Error
}

/* drum usages */

func (s *Store) FindUsagesByLines(ctx context.Context, lineIDs []uint) ([]DrumUsage, error) {
	if len(lineIDs) == 0 {
		return nil, nil
	}
	var usages []DrumUsage
	err := s.db.WithContext(ctx).Where("line_record_id IN ?", lineIDs).Find(&usages).Error
	return usages, err
}

func (s *Store) FindUsagesByDrum(ctx context.Context, drumID uint) ([]DrumUsage, error) {
	var usages []DrumUsage
	err := s.db.WithContext(ctx).Where("drum_tracking_id = ?", drumID).Order("usage_date ASC, id ASC").Find(&usages).Error
	return usages, err
}

func (s *Store) SaveUsage(ctx context.Context, usage *DrumUsage) error {
	if usage.ID == 0 {
		return translateErr(s.db.WithContext(ctx).Create(usage).Error)
	}
	return translateErr(s.db.WithContext(ctx).Save(usage).Error)
}

func (s *Store) DeleteUsage(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&DrumUsage{}, id).Error
}
