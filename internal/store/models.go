package store

import (
	"time"

	"github.com/google/uuid"
)

type AssetStatus string

const (
	AssetStatusUploaded AssetStatus = "uploaded"
)

type Asset struct {
	ID          uuid.UUID `db:"id"`
	OwnerID     uuid.UUID `db:"owner_id"`
	DisplayName string    `db:"display_name"`
	StoredPath  string    `db:"stored_path"`
	Status      string    `db:"status"`
	SizeBytes   int64     `db:"size_bytes"`
	CreatedAt   time.Time `db:"created_at"`
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

type Task struct {
	ID                uuid.UUID     `db:"id"`
	OwnerID           uuid.UUID     `db:"owner_id"`
	SourceAssetID     uuid.UUID     `db:"source_asset_id"`
	SourceDisplayName string        `db:"source_display_name"`
	Argv              string        `db:"argv"`
	PlannedFinalPath  string        `db:"planned_final_path"`
	Status            string        `db:"status"`
	Progress          int           `db:"progress"`
	Details           string        `db:"details"`
	ResultAssetID     uuid.NullUUID `db:"result_asset_id"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}
