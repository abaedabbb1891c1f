// Package store is the persistence layer for assets and tasks, grounded on
// the teacher's internal/transcode/store.go and internal/user/store.go -
// same sqlx+squirrel query-builder idiom, simplified down to the columns
// this domain actually needs.
package store

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/arcflux/reeltime/internal/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var assetColumns = []string{"id", "owner_id", "display_name", "stored_path", "status", "size_bytes", "created_at"}

var taskColumns = []string{"id", "owner_id", "source_asset_id", "source_display_name", "argv", "planned_final_path", "status", "progress", "details", "result_asset_id", "created_at", "updated_at"}

type Store struct {
	db database.Queryable
}

func New(db database.Queryable) *Store {
	return &Store{db: db}
}

func (s *Store) CreateAsset(asset Asset) error {
	query, args, err := psql.Insert("assets").
		Columns(assetColumns...).
		Values(asset.ID, asset.OwnerID, asset.DisplayName, asset.StoredPath, asset.Status, asset.SizeBytes, asset.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build asset insert: %w", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (s *Store) GetAsset(id uuid.UUID) (*Asset, error) {
	query, args, err := psql.Select(assetColumns...).From("assets").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build asset select: %w", err)
	}

	var asset Asset
	if err := s.db.Get(&asset, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", id, err)
	}
	return &asset, nil
}

func (s *Store) ListAssetsByOwner(ownerID uuid.UUID, limit, offset int) ([]Asset, error) {
	query, args, err := psql.Select(assetColumns...).
		From("assets").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build asset list query: %w", err)
	}

	var assets []Asset
	if err := s.db.Select(&assets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list assets for owner %s: %w", ownerID, err)
	}
	return assets, nil
}

func (s *Store) DeleteAsset(id uuid.UUID) error {
	query, args, err := psql.Delete("assets").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build asset delete: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", id, err)
	}
	return nil
}

func (s *Store) CreateTask(task Task) error {
	query, args, err := psql.Insert("tasks").
		Columns("id", "owner_id", "source_asset_id", "source_display_name", "argv", "planned_final_path", "status", "progress", "details", "created_at", "updated_at").
		Values(task.ID, task.OwnerID, task.SourceAssetID, task.SourceDisplayName, task.Argv, task.PlannedFinalPath, task.Status, task.Progress, task.Details, task.CreatedAt, task.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build task insert: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(id uuid.UUID) (*Task, error) {
	query, args, err := psql.Select(taskColumns...).From("tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build task select: %w", err)
	}

	var task Task
	if err := s.db.Get(&task, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return &task, nil
}

func (s *Store) ListTasksByOwner(ownerID uuid.UUID, limit, offset int) ([]Task, error) {
	query, args, err := psql.Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build task list query: %w", err)
	}

	var tasks []Task
	if err := s.db.Select(&tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks for owner %s: %w", ownerID, err)
	}
	return tasks, nil
}

func (s *Store) UpdateTaskProgress(id uuid.UUID, status string, progress int, details string) error {
	query, args, err := psql.Update("tasks").
		Set("status", status).
		Set("progress", progress).
		Set("details", details).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build task progress update: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	return nil
}

// CompleteTask is idempotent: re-running it for an already-completed task
// just rewrites the same result, so a crash between the DB write and the
// in-memory state transition can be safely retried.
func (s *Store) CompleteTask(id, resultAssetID uuid.UUID) error {
	query, args, err := psql.Update("tasks").
		Set("status", string(TaskStatusCompleted)).
		Set("progress", 100).
		Set("result_asset_id", resultAssetID).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build task completion update: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to complete task %s: %w", id, err)
	}
	return nil
}

// DeleteTasksReferencingAsset removes every task that names assetID as
// either its source or its result - called when an asset is deleted so no
// task is left pointing at a file that no longer exists.
func (s *Store) DeleteTasksReferencingAsset(assetID uuid.UUID) error {
	query, args, err := psql.Delete("tasks").
		Where(sq.Or{sq.Eq{"source_asset_id": assetID}, sq.Eq{"result_asset_id": assetID}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build task cleanup delete: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete tasks referencing asset %s: %w", assetID, err)
	}
	return nil
}

func (s *Store) DeleteTask(id uuid.UUID) error {
	query, args, err := psql.Delete("tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build task delete: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// MarkNonTerminalTasksFailed marks every task not already completed or
// failed as failed. Called once at startup: a task left pending or
// processing across a restart has no runner actually still working on it.
func (s *Store) MarkNonTerminalTasksFailed(detail string) (int64, error) {
	query, args, err := psql.Update("tasks").
		Set("status", string(TaskStatusFailed)).
		Set("details", detail).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"status": []string{string(TaskStatusPending), string(TaskStatusProcessing)}}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build crash-recovery update: %w", err)
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark non-terminal tasks failed: %w", err)
	}
	return result.RowsAffected()
}
