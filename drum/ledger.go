package drum

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Store interface {
	ListCatalogItems(ctx context.Context) ([]models.CatalogItem, error)
	FindDrumsByNumbers(ctx context.Context, numbers []string) ([]models.DrumTracking, error)
	CreateDrum(ctx context.Context, drum *models.DrumTracking) error
	GetDrum(ctx context.Context, id uint) (*models.DrumTracking, error)
	GetDrumByNumber(ctx context.Context, number string) (*models.DrumTracking, error)
	ListDrumIDs(ctx context.Context) ([]uint, error)
	SaveDrumAggregate(ctx context.Context, drum *models.DrumTracking) error

	FindUsagesByLines(ctx context.Context, lineIDs []uint) ([]models.DrumUsage, error)
	FindUsagesByDrum(ctx context.Context, drumID uint) ([]models.DrumUsage, error)
	SaveUsage(ctx context.Context, usage *models.DrumUsage) error
	DeleteUsage(ctx context.Context, id uint) error
}

// Service owns the drum ledger and its cached aggregates.
type Service struct {
	store    Store
	method   Method
	lowStock decimal.Decimal
	logger   *logrus.Logger
	now      func() time.Time
}

func NewService(store Store, method Method, lowStock decimal.Decimal, logger *logrus.Logger) *Service {
	if method == "" {
		method = MethodSmartSegments
	}
	return &Service{store: store, method: method, lowStock: lowStock, logger: logger, now: time.Now}
}

type EnsureReport struct {
	Drums   map[string]*models.DrumTracking
	Created int
}

// EnsureDrums returns a tracking record for every drum number, creating the
// missing ones against the default catalog item.
func (s *Service) EnsureDrums(ctx context.Context, numbers []string) (EnsureReport, error) {
	report := EnsureReport{Drums: map[string]*models.DrumTracking{}}
	wanted := distinct(numbers)
	if len(wanted) == 0 {
		return report, nil
	}

	existing, err := s.store.FindDrumsByNumbers(ctx, wanted)
	if err != nil {
		return report, fmt.Errorf("find drums: %w", err)
	}
	for i := range existing {
		report.Drums[existing[i].DrumNumber] = &existing[i]
	}

	var item *models.CatalogItem
	loaded := false
	for _, number := range wanted {
		if report.Drums[number] != nil {
			continue
		}
		if !loaded {
			items, err := s.store.ListCatalogItems(ctx)
			if err != nil {
				return report, fmt.Errorf("list catalog items: %w", err)
			}
			item = DefaultCatalogItem(items)
			loaded = true
		}
		drum := newDrum(number, item)
		if err := s.store.CreateDrum(ctx, drum); err != nil {
			if !errors.Is(err, models.ErrDuplicate) {
				return report, fmt.Errorf("create drum %s: %w", number, err)
			}
			// created concurrently
			if drum, err = s.store.GetDrumByNumber(ctx, number); err != nil {
				return report, fmt.Errorf("reload drum %s: %w", number, err)
			}
		} else {
			report.Created++
		}
		report.Drums[number] = drum
	}
	return report, nil
}

func newDrum(number string, item *models.CatalogItem) *models.DrumTracking {
	drum := &models.DrumTracking{DrumNumber: number, Status: models.DrumStatusUnknown}
	if item != nil {
		id := item.ID
		drum.CatalogItemId = &id
		drum.CatalogItem = item
		drum.InitialQuantity = item.RatedCapacity
		drum.CurrentQuantity = item.RatedCapacity
		drum.RemainingCable = item.RatedCapacity
		if item.RatedCapacity.IsPositive() {
			drum.Status = models.DrumStatusActive
		}
	}
	return drum
}

// DefaultCatalogItem prefers a drop wire item with a rated capacity, then any
// item with a rated capacity. It returns nil when no item qualifies.
func DefaultCatalogItem(items []models.CatalogItem) *models.CatalogItem {
	var fallback *models.CatalogItem
	for i := range items {
		it := &items[i]
		if !it.RatedCapacity.IsPositive() {
			continue
		}
		if isDropWire(it.Name) {
			return it
		}
		if fallback == nil {
			fallback = it
		}
	}
	return fallback
}

func isDropWire(name string) bool {
	n := strings.ToLower(name)
	n = strings.NewReplacer("-", " ", "_", " ").Replace(n)
	return strings.Contains(n, "drop wire") || strings.Contains(n, "dropwire")
}

func distinct(numbers []string) []string {
	seen := make(map[string]bool, len(numbers))
	var out []string
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the drum with its cached aggregate.
func (s *Service) Lookup(ctx context.Context, number string) (*models.DrumTracking, error) {
	return s.store.GetDrumByNumber(ctx, strings.TrimSpace(number))
}
