package models

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Connection binds one (month, year) to the spreadsheet that holds that month's ledger.
type Connection struct {
	ID           uint             `gorm:"primary_key" json:"id"`
	Year         int              `gorm:"not null;uniqueIndex:idx_connection_period,priority:1" json:"year"`
	Month        int              `gorm:"not null;uniqueIndex:idx_connection_period,priority:2" json:"month"`
	SheetId      string           `gorm:"size:128;not null" json:"sheet_id"`
	SheetTab     string           `gorm:"size:100" json:"sheet_tab"`
	SecondaryTab string           `gorm:"size:100" json:"secondary_tab"`
	Status       ConnectionStatus `gorm:"size:20;not null;default:active" json:"status"`
	LastError    string           `gorm:"type:text" json:"last_error"`
	LastSynced   *time.Time       `json:"last_synced"`
	RecordCount  int              `gorm:"default:0" json:"record_count"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c Connection) Period() Period {
	return Period{Month: c.Month, Year: c.Year}
}

type NewConnection struct {
	Month        int    `json:"month" validate:"required,min=1,max=12"`
	Year         int    `json:"year" validate:"required,min=2000,max=2100"`
	SheetURL     string `json:"sheet_url" validate:"required_without=SheetId"`
	SheetId      string `json:"sheet_id" validate:"required_without=SheetURL"`
	SheetTab     string `json:"sheet_tab" validate:"max=100"`
	SecondaryTab string `json:"secondary_tab" validate:"max=100"`
}

var (
	validate = validator.New()

	ErrInvalidSheetRef = errors.New("invalid spreadsheet url or id")

	sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	sheetIdPattern  = regexp.MustCompile(`^[a-zA-Z0-9-_]{10,}$`)
)

// Validate checks ranges and resolves the spreadsheet id.
func (input *NewConnection) Validate() error {
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("invalid connection: %w", err)
	}
	ref := strings.TrimSpace(input.SheetId)
	if ref == "" {
		ref = strings.TrimSpace(input.SheetURL)
	}
	id, err := ParseSheetId(ref)
	if err != nil {
		return err
	}
	input.SheetId = id
	input.SheetTab = strings.TrimSpace(input.SheetTab)
	input.SecondaryTab = strings.TrimSpace(input.SecondaryTab)
	return nil
}

// ParseSheetId accepts a bare spreadsheet id or any Google Sheets URL.
func ParseSheetId(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidSheetRef
	}
	if strings.Contains(ref, "/") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", ErrInvalidSheetRef
		}
		m := sheetURLPattern.FindStringSubmatch(u.Path)
		if len(m) != 2 {
			return "", ErrInvalidSheetRef
		}
		return m[1], nil
	}
	if !sheetIdPattern.MatchString(ref) {
		return "", ErrInvalidSheetRef
	}
	return ref, nil
}
