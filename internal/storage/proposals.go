package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const proposalColumns = `id, kind, table_name, column_name, sql_query, description, status,
	 created_by, created_at, executed_at, error_message`

func scanProposal(row pgx.Row) (model.SchemaProposal, error) {
	var p model.SchemaProposal
	err := row.Scan(
		&p.ID, &p.Kind, &p.TableName, &p.ColumnName, &p.SQLQuery, &p.Description, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.ExecutedAt, &p.ErrorMessage,
	)
	return p, err
}

// CreateProposal queues a new schema proposal in pending state.
func (db *DB) CreateProposal(ctx context.Context, in model.ProposalInput, createdBy int64) (model.SchemaProposal, error) {
	p, err := scanProposal(db.pool.QueryRow(ctx,
		`INSERT INTO schema_proposals (kind, table_name, column_name, sql_query, description, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+proposalColumns,
		in.Kind, in.TableName, in.ColumnName, in.SQLQuery, in.Description, createdBy,
	))
	if err != nil {
		return model.SchemaProposal{}, fmt.Errorf("storage: create proposal: %w", err)
	}
	return p, nil
}

// GetProposal retrieves a proposal by ID.
func (db *DB) GetProposal(ctx context.Context, id int64) (model.SchemaProposal, error) {
	p, err := scanProposal(db.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM schema_proposals WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SchemaProposal{}, fmt.Errorf("storage: proposal %d: %w", id, ErrNotFound)
		}
		return model.SchemaProposal{}, fmt.Errorf("storage: get proposal: %w", err)
	}
	return p, nil
}

// ListProposals returns proposals newest first, optionally filtered by status.
func (db *DB) ListProposals(ctx context.Context, status model.ProposalStatus) ([]model.SchemaProposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM schema_proposals`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []model.SchemaProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// ApproveProposal moves a proposal from pending to approved. The status
// check lives in the WHERE clause so concurrent approvals race safely:
// the loser sees ErrConflict.
func (db *DB) ApproveProposal(ctx context.Context, id int64) (model.SchemaProposal, error) {
	return db.transitionProposal(ctx, id,
		`UPDATE schema_proposals SET status = 'approved'
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+proposalColumns,
	)
}

// MarkProposalExecuted moves an approved proposal to executed and stamps
// the execution time.
func (db *DB) MarkProposalExecuted(ctx context.Context, id int64, at time.Time) (model.SchemaProposal, error) {
	return db.transitionProposal(ctx, id,
		`UPDATE schema_proposals SET status = 'executed', executed_at = $2, error_message = NULL
		 WHERE id = $1 AND status = 'approved'
		 RETURNING `+proposalColumns,
		at,
	)
}

// MarkProposalFailed moves an approved proposal to failed and records what
// went wrong.
func (db *DB) MarkProposalFailed(ctx context.Context, id int64, errorMessage string) (model.SchemaProposal, error) {
	return db.transitionProposal(ctx, id,
		`UPDATE schema_proposals SET status = 'failed', error_message = $2
		 WHERE id = $1 AND status = 'approved'
		 RETURNING `+proposalColumns,
		errorMessage,
	)
}

func (db *DB) transitionProposal(ctx context.Context, id int64, query string, extra ...any) (model.SchemaProposal, error) {
	args := append([]any{id}, extra...)
	p, err := scanProposal(db.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the proposal does not exist or it is not in the
			// state the transition requires. Distinguish for callers.
			if _, getErr := db.GetProposal(ctx, id); getErr != nil {
				return model.SchemaProposal{}, getErr
			}
			return model.SchemaProposal{}, fmt.Errorf("storage: proposal %d transition: %w", id, ErrConflict)
		}
		return model.SchemaProposal{}, fmt.Errorf("storage: proposal transition: %w", err)
	}
	return p, nil
}

// ExecuteRawSQL runs an approved proposal's statement against the database.
func (db *DB) ExecuteRawSQL(ctx context.Context, query string) error {
	if _, err := db.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("storage: execute raw sql: %w", err)
	}
	return nil
}
