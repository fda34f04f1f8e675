package drum

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/mmdatafocus/fieldops_backend/models"
)

// maxStatusPasses bounds the status/aggregate loop; a drum settles in at most
// two transitions (active to inactive to empty).
const maxStatusPasses = 3

type Outcome struct {
	DrumID     uint
	DrumNumber string
	Status     models.DrumStatus
	Result     Result
}

// Recalculate recomputes and stores the aggregate of every given drum. A
// failing drum does not stop the others; their errors are joined.
func (s *Service) Recalculate(ctx context.Context, drumIDs []uint) ([]Outcome, error) {
	var out []Outcome
	var errs []error
	for _, id := range drumIDs {
		o, err := s.recalculateOne(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("drum %d: %w", id, err))
			continue
		}
		out = append(out, o)
	}
	err := errors.Join(errs...)
	config.LogError(s.logger, "drum", "Recalculate", "recalculate drums", drumIDs, err)
	return out, err
}

// RecalculateAll recomputes every drum in the ledger.
func (s *Service) RecalculateAll(ctx context.Context) ([]Outcome, error) {
	ids, err := s.store.ListDrumIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drums: %w", err)
	}
	return s.Recalculate(ctx, ids)
}

func (s *Service) recalculateOne(ctx context.Context, id uint) (Outcome, error) {
	d, err := s.store.GetDrum(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	usages, err := s.store.FindUsagesByDrum(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	in := Input{
		Capacity:      d.Capacity(),
		Status:        d.Status,
		ManualWastage: d.ManualWastage,
		Method:        s.method,
	}
	for _, u := range usages {
		in.Usages = append(in.Usages, Usage{Quantity: u.QuantityUsed, Start: u.StartOffset, End: u.EndOffset, Date: u.UsageDate})
	}

	// A status change can move the uncovered length between remaining and
	// wastage, so recompute until the status holds.
	var res Result
	for pass := 0; pass < maxStatusPasses; pass++ {
		if res, err = Calculate(in); err != nil {
			return Outcome{}, err
		}
		next := DeriveStatus(in.Status, res, s.lowStock)
		if next == in.Status {
			break
		}
		in.Status = next
	}

	at := s.now()
	d.Status = in.Status
	d.CurrentQuantity = res.CalculatedCurrentQuantity
	d.TotalUsed = res.TotalUsed
	d.TotalWastage = res.TotalWastage
	d.RemainingCable = res.RemainingCable
	d.CalculationMethod = string(res.Method)
	d.CalculatedAt = &at
	if err := s.store.SaveDrumAggregate(ctx, d); err != nil {
		return Outcome{}, err
	}
	return Outcome{DrumID: d.ID, DrumNumber: d.DrumNumber, Status: d.Status, Result: res}, nil
}
