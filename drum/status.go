package drum

import (
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/shopspring/decimal"
)

// DeriveStatus moves a drum to empty when nothing is left, or to inactive
// when it is at or below the low-stock threshold. A zero threshold disables
// the low-stock rule. Drums without a known capacity keep their status.
func DeriveStatus(current models.DrumStatus, r Result, lowStock decimal.Decimal) models.DrumStatus {
	if !r.Capacity.IsPositive() {
		return current
	}
	qty := r.CalculatedCurrentQuantity
	switch {
	case !qty.IsPositive():
		return models.DrumStatusEmpty
	case lowStock.IsPositive() && qty.LessThanOrEqual(lowStock) && current != models.DrumStatusInactive:
		return models.DrumStatusInactive
	}
	return current
}
