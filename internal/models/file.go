package models

import "time"

type FileType string

const (
	FileTypeVideo FileType = "Video"
	FileTypeImage FileType = "Image"
	FileTypeSplat FileType = "Splat"
)

type File struct {
	ID           string
	UserID       *string
	Name         string
	Key          string
	Bucket       string
	URL          string
	Type         FileType
	Mimetype     string
	Size         int64
	ThumbnailURL string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
