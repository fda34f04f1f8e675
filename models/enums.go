package models

type ConnectionStatus string

const (
	ConnectionStatusActive ConnectionStatus = "active"
	ConnectionStatusError  ConnectionStatus = "error"
)

type LineStatus string

const (
	LineStatusCompleted LineStatus = "completed"
	LineStatusPending   LineStatus = "pending"
)

type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "open"
	TaskStatusDone TaskStatus = "done"
)

type DrumStatus string

const (
	DrumStatusActive      DrumStatus = "active"
	DrumStatusInactive    DrumStatus = "inactive"
	DrumStatusEmpty       DrumStatus = "empty"
	DrumStatusMaintenance DrumStatus = "maintenance"
	DrumStatusUnknown     DrumStatus = "unknown"
)

// IsRetired reports whether the drum no longer supplies cable, so its unused length counts as wastage.
func (s DrumStatus) IsRetired() bool {
	return s == DrumStatusInactive || s == DrumStatusEmpty
}

func (s DrumStatus) IsValid() bool {
	switch s {
	case DrumStatusActive, DrumStatusInactive, DrumStatusEmpty, DrumStatusMaintenance, DrumStatusUnknown:
		return true
	}
	return false
}
