package reconcile

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/fieldops_backend/sheet"
)

var ErrTabNotFound = errors.New("tab not found")

// ValidationError aborts a pass before anything is written.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExternalError is a spreadsheet provider failure with a hint for the operator.
type ExternalError struct {
	Op   string
	Hint string
	Err  error
}

func (e *ExternalError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Hint)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// ClassifyProviderErr wraps permission and not-found failures from the
// provider; other errors are returned unchanged.
func ClassifyProviderErr(op string, err error, serviceAccount string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sheet.ErrPermissionDenied):
		who := "the service account"
		if serviceAccount != "" {
			who = serviceAccount
		}
		return &ExternalError{Op: op, Err: err, Hint: "share the spreadsheet with " + who + " as an editor"}
	case errors.Is(err, sheet.ErrSpreadsheetNotFound):
		return &ExternalError{Op: op, Err: err, Hint: "check the spreadsheet URL and tab name on the connection"}
	}
	return err
}

// RowError is a fallback-path failure; it fails the whole pass.
type RowError struct {
	Key string
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %s: %v", e.Key, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
