package models

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationProjectCreated NotificationType = "project_created"
	NotificationScanCreated    NotificationType = "scan_created"
	NotificationScanCompleted  NotificationType = "scan_completed"
	NotificationScanFailed     NotificationType = "scan_failed"
)

type Notification struct {
	ID        string
	Title     string
	Type      NotificationType
	Read      bool
	Metadata  json.RawMessage
	UserID    string
	CreatedAt time.Time
}

type ActivityEntity string

const (
	ActivityEntityProject ActivityEntity = "project"
	ActivityEntityScan    ActivityEntity = "scan"
)

type ActivityType string

const (
	ActivityCreated   ActivityType = "created"
	ActivityUpdated   ActivityType = "updated"
	ActivityDeleted   ActivityType = "deleted"
	ActivityCompleted ActivityType = "completed"
	ActivityFailed    ActivityType = "failed"
)

// Activity rows are append-only.
type Activity struct {
	ID        string
	Entity    ActivityEntity
	Type      ActivityType
	Metadata  json.RawMessage
	UserID    string
	CreatedAt time.Time
}
