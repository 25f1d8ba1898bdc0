package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"schoold/internal/db"
	"schoold/internal/ledger"
)

// AppendPath appends path to the owner's attachments array in a single
// statement. COALESCE keeps rows written before the column default existed
// from breaking the append.
func (s *Store) AppendPath(ctx context.Context, owner ledger.Owner, id uuid.UUID, path string) error {
	table, err := owner.Table()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`UPDATE %s SET attachments = COALESCE(attachments, '[]'::jsonb) || to_jsonb($2::text), updated_at = NOW() WHERE id = $1`,
		table,
	)
	tag, err := db.Exec(ctx, s.pool, query, id, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: no such row", owner, id)
	}
	return nil
}

// RemovePath strips every occurrence of path from the attachments array.
func (s *Store) RemovePath(ctx context.Context, owner ledger.Owner, id uuid.UUID, path string) error {
	table, err := owner.Table()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		`UPDATE %s SET attachments = COALESCE(attachments, '[]'::jsonb) - $2, updated_at = NOW() WHERE id = $1`,
		table,
	)
	_, err = db.Exec(ctx, s.pool, query, id, path)
	return err
}

// ClearPaths resets the owner's attachments array.
func (s *Store) ClearPaths(ctx context.Context, owner ledger.Owner, id uuid.UUID) error {
	table, err := owner.Table()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET attachments = '[]'::jsonb, updated_at = NOW() WHERE id = $1`, table)
	_, err = db.Exec(ctx, s.pool, query, id)
	return err
}
