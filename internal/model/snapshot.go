package model

import "time"

type SnapshotStatus string

const (
	SnapshotStatusPending   SnapshotStatus = "pending"
	SnapshotStatusUploading SnapshotStatus = "uploading"
	SnapshotStatusDone      SnapshotStatus = "done"
	SnapshotStatusFailed    SnapshotStatus = "failed"
)

// SnapshotRecord tracks one exported full-state blob.
type SnapshotRecord struct {
	ID        int64          `json:"id"`
	Filename  string         `json:"filename"`
	S3Key     string         `json:"s3_key"`
	SizeBytes int64          `json:"size_bytes"`
	Status    SnapshotStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
