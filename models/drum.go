package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogItem is a cable type; RatedCapacity is the length of a full drum.
type CatalogItem struct {
	ID            uint            `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Sku           string          `gorm:"size:64" json:"sku"`
	RatedCapacity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rated_capacity"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DrumTracking is one physical drum, identified by the number painted on it.
type DrumTracking struct {
	ID              uint             `gorm:"primary_key" json:"id"`
	DrumNumber      string           `gorm:"size:64;not null;uniqueIndex" json:"drum_number"`
	CatalogItemId   *uint            `gorm:"index" json:"catalog_item_id"`
	CatalogItem     *CatalogItem     `json:"catalog_item,omitempty"`
	InitialQuantity decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"initial_quantity"`
	CurrentQuantity decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"current_quantity"`
	Status          DrumStatus       `gorm:"size:20;not null;default:active" json:"status"`
	ManualWastage   *decimal.Decimal `gorm:"type:decimal(20,4)" json:"manual_wastage"`

	// Cached aggregate of the last wastage calculation.
	TotalUsed         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_used"`
	TotalWastage      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_wastage"`
	RemainingCable    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_cable"`
	CalculationMethod string          `gorm:"size:32" json:"calculation_method"`
	CalculatedAt      *time.Time      `json:"calculated_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Capacity prefers the catalog rating and falls back to the quantity the drum was registered with.
func (d DrumTracking) Capacity() decimal.Decimal {
	if d.CatalogItem != nil && d.CatalogItem.RatedCapacity.IsPositive() {
		return d.CatalogItem.RatedCapacity
	}
	return d.InitialQuantity
}

// DrumUsage is one LineRecord's draw from one drum. Offsets, when both set,
// mark the half-open span [min(start,end), max(start,end)) on the drum.
type DrumUsage struct {
	ID             uint             `gorm:"primary_key" json:"id"`
	DrumTrackingId uint             `gorm:"not null;uniqueIndex:idx_drum_usage_line,priority:1" json:"drum_tracking_id"`
	LineRecordId   uint             `gorm:"not null;uniqueIndex:idx_drum_usage_line,priority:2;index" json:"line_record_id"`
	QuantityUsed   decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"quantity_used"`
	StartOffset    *decimal.Decimal `gorm:"type:decimal(20,4)" json:"start_offset"`
	EndOffset      *decimal.Decimal `gorm:"type:decimal(20,4)" json:"end_offset"`
	UsageDate      time.Time        `gorm:"type:date" json:"usage_date"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
