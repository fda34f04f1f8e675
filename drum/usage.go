package drum

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

type UsageReport struct {
	Created int
	Updated int
	Deleted int
	// Touched lists every drum whose usages changed, old drums included.
	Touched []uint
}

// SyncUsages keeps one usage per line that draws from a known drum. Quantity
// is the line total; the cable start and end readings become the offsets.
// A line with no drum or nothing drawn loses its usage.
func (s *Service) SyncUsages(ctx context.Context, lines []models.LineRecord, drums map[string]*models.DrumTracking) (UsageReport, error) {
	var report UsageReport
	if len(lines) == 0 {
		return report, nil
	}
	ids := make([]uint, len(lines))
	for i, l := range lines {
		ids[i] = l.ID
	}
	existing, err := s.store.FindUsagesByLines(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("find usages: %w", err)
	}
	byLine := make(map[uint]models.DrumUsage, len(existing))
	for _, u := range existing {
		byLine[u.LineRecordId] = u
	}

	touched := map[uint]bool{}
	var errs []error
	for _, l := range lines {
		current, has := byLine[l.ID]
		d := drums[strings.TrimSpace(l.DrumNumber)]

		if d == nil || (!l.Total.IsPositive() && !l.HasDrumOffsets()) {
			if has {
				if err := s.store.DeleteUsage(ctx, current.ID); err != nil {
					errs = append(errs, fmt.Errorf("line %d: %w", l.ID, err))
					continue
				}
				touched[current.DrumTrackingId] = true
				report.Deleted++
			}
			continue
		}

		want := usageFor(l, d.ID)
		if has {
			if sameUsage(current, want) {
				continue
			}
			touched[current.DrumTrackingId] = true
			want.ID, want.CreatedAt = current.ID, current.CreatedAt
		}
		if err := s.store.SaveUsage(ctx, &want); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", l.ID, err))
			continue
		}
		touched[d.ID] = true
		if has {
			report.Updated++
		} else {
			report.Created++
		}
	}

	for id := range touched {
		report.Touched = append(report.Touched, id)
	}
	sort.Slice(report.Touched, func(i, j int) bool { return report.Touched[i] < report.Touched[j] })
	return report, errors.Join(errs...)
}

func usageFor(l models.LineRecord, drumID uint) models.DrumUsage {
	u := models.DrumUsage{
		DrumTrackingId: drumID,
		LineRecordId:   l.ID,
		QuantityUsed:   l.Total,
		UsageDate:      l.InstallDate,
	}
	if l.HasDrumOffsets() {
		start, end := l.CableStart, l.CableEnd
		u.StartOffset, u.EndOffset = &start, &end
	}
	return u
}

func sameUsage(a, b models.DrumUsage) bool {
	return a.DrumTrackingId == b.DrumTrackingId &&
		a.QuantityUsed.Equal(b.QuantityUsed) &&
		sameOffset(a.StartOffset, b.StartOffset) &&
		sameOffset(a.EndOffset, b.EndOffset) &&
		a.UsageDate.Equal(b.UsageDate)
}

func sameOffset(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
