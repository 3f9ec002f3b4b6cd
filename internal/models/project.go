package models

import "time"

type Project struct {
	ID          string
	Name        string
	Slug        string
	ThumbnailID *string
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ScanStatus string

const (
	ScanStatusPreparing ScanStatus = "Preparing"
	ScanStatusCompleted ScanStatus = "Completed"
	ScanStatusFailed    ScanStatus = "Failed"
)

// Terminal reports whether no further transition is accepted.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

type Scan struct {
	ID          string
	Name        string
	Slug        string
	Status      ScanStatus
	InputFileID string
	SplatFileID *string
	ProjectID   string
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
