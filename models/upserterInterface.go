package models

// UpsertKind is the outcome class of a bulk line upsert.
type UpsertKind int

const (
	UpsertOK UpsertKind = iota
	// UpsertConstraintMissing: the (telephone, install_date) unique index does not exist.
	UpsertConstraintMissing
	// UpsertRowAffectedTwice: one statement targeted the same row more than once.
	UpsertRowAffectedTwice
	UpsertFailed
)

func (k UpsertKind) String() string {
	switch k {
	case UpsertOK:
		return "ok"
	case UpsertConstraintMissing:
		return "constraint_missing"
	case UpsertRowAffectedTwice:
		return "row_affected_twice"
	default:
		return "failed"
	}
}

// Retryable reports whether the row-by-row path can recover from this outcome.
func (k UpsertKind) Retryable() bool {
	return k == UpsertConstraintMissing || k == UpsertRowAffectedTwice
}

type UpsertResult struct {
	Kind     UpsertKind
	Affected int64
	Err      error
}
