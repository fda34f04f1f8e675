package config

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// NewSheetsService builds a Google Sheets client.
// GOOGLE_CREDENTIALS_JSON takes precedence over Application Default Credentials.
func NewSheetsService(ctx context.Context) (*sheets.Service, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets service: %w", err)
	}
	return svc, nil
}

// ServiceAccountEmail is quoted in permission errors so operators know whom to share the sheet with.
func ServiceAccountEmail() string {
	return os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL")
}
