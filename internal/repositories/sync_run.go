package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mlsync/internal/models"
	"github.com/desertthunder/mlsync/internal/shared"
)

// SyncRunRepository persists [models.SyncRun] records.
type SyncRunRepository struct {
	db *sql.DB
}

// RunFilter narrows [SyncRunRepository.List].
type RunFilter struct {
	CampaignID string
	RunID      string
	Limit      int // zero means no limit
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

const syncRunColumns = `id, sequence, run_id, campaign_id, state, dry_run, approved_added, registered_added,
	pruned, failed_batches, error_message, started_at, completed_at, created_at, updated_at, deleted_at`

// Create inserts a run and its passes with a generated ID and sequence
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(ctx, r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sync_runs (` + syncRunColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		run.ID(),
		run.Sequence(),
		run.RunID(),
		run.CampaignID(),
		string(run.State()),
		run.DryRun(),
		run.ApprovedAdded(),
		run.RegisteredAdded(),
		run.Pruned(),
		run.FailedBatches(),
		nullString(run.ErrorMessage()),
		run.StartedAt(),
		run.CompletedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	if err := insertPasses(ctx, tx, run.ID(), run.Passes()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync run: %w", err)
	}
	return nil
}

// Get retrieves a run with its passes by ID, excluding soft-deleted runs
func (r *SyncRunRepository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE id = ? AND deleted_at IS NULL`

	run, err := scanSyncRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	passes, err := r.passes(ctx, id)
	if err != nil {
		return nil, err
	}
	run.SetPasses(passes)
	return run, nil
}

// Update modifies the outcome columns of an existing run
func (r *SyncRunRepository) Update(ctx context.Context, run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE sync_runs
		SET state = ?, approved_added = ?, registered_added = ?, pruned = ?, failed_batches = ?,
			error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		string(run.State()),
		run.ApprovedAdded(),
		run.RegisteredAdded(),
		run.Pruned(),
		run.FailedBatches(),
		nullString(run.ErrorMessage()),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	return expectRow(result, run.ID())
}

// Delete soft-deletes a run by ID
func (r *SyncRunRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE sync_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}

	return expectRow(result, id)
}

// List retrieves runs matching filter, newest first, excluding soft-deleted runs.
// Passes are not loaded; use [SyncRunRepository.Get] for detail.
func (r *SyncRunRepository) List(ctx context.Context, filter RunFilter) ([]*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE deleted_at IS NULL`
	args := []any{}

	if filter.CampaignID != "" {
		query += " AND campaign_id = ?"
		args = append(args, filter.CampaignID)
	}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}

	query += " ORDER BY sequence DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

func (r *SyncRunRepository) passes(ctx context.Context, runID string) ([]models.PassRecord, error) {
	query := `
		SELECT group_id, list_id, approved, scanned, added, error_message
		FROM sync_passes
		WHERE sync_run_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync passes: %w", err)
	}
	defer rows.Close()

	var passes []models.PassRecord
	for rows.Next() {
		var (
			p      models.PassRecord
			errMsg sql.NullString
		)
		if err := rows.Scan(&p.GroupID, &p.ListID, &p.Approved, &p.Scanned, &p.Added, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan sync pass: %w", err)
		}
		p.ErrorMessage = errMsg.String
		passes = append(passes, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return passes, nil
}

func insertPasses(ctx context.Context, tx *sql.Tx, syncRunID string, passes []models.PassRecord) error {
	query := `
		INSERT INTO sync_passes (sync_run_id, group_id, list_id, approved, scanned, added, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, p := range passes {
		if _, err := tx.ExecContext(ctx, query, syncRunID, p.GroupID, p.ListID, p.Approved, p.Scanned, p.Added, nullString(p.ErrorMessage)); err != nil {
			return fmt.Errorf("failed to insert sync pass: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSyncRun scans a single row into a [models.SyncRun]
func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	var (
		id              string
		sequence        int
		runID           string
		campaignID      string
		state           string
		dryRun          bool
		approvedAdded   int
		registeredAdded int
		pruned          int
		failedBatches   int
		errorMessage    sql.NullString
		startedAt       time.Time
		completedAt     sql.NullTime
		createdAt       time.Time
		updatedAt       time.Time
		deletedAt       sql.NullTime
	)

	err := row.Scan(&id, &sequence, &runID, &campaignID, &state, &dryRun, &approvedAdded, &registeredAdded,
		&pruned, &failedBatches, &errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	return models.RestoreSyncRun(
		id, sequence, runID, campaignID, models.RunState(state), dryRun,
		approvedAdded, registeredAdded, pruned, failedBatches, errorMessage.String,
		startedAt, nullTime(completedAt), createdAt, updatedAt, nullTime(deletedAt),
	), nil
}

func expectRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: sync run not found or already deleted: %s", shared.ErrNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
