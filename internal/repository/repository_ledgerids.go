package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tenderbridge/internal/models"
)

const uniqueViolation = pq.ErrorCode("23505")

//// Ledger id assignments

func (r *Repository) LookupLedgerId(ctx context.Context, recordId string) (string, error) {
	var ledgerId string
	err := r.db.QueryRowContext(ctx,
		`SELECT ledger_id FROM ledger_ids WHERE record_id = $1`, recordId).
		Scan(&ledgerId)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("repository.Repository.LookupLedgerId: %w", models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("repository.Repository.LookupLedgerId: %w", err)
	}
	return ledgerId, nil
}

func (r *Repository) LookupRecordId(ctx context.Context, ledgerId string) (string, error) {
	var recordId string
	err := r.db.QueryRowContext(ctx,
		`SELECT record_id FROM ledger_ids WHERE ledger_id = $1`, ledgerId).
		Scan(&recordId)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("repository.Repository.LookupRecordId: %w", models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("repository.Repository.LookupRecordId: %w", err)
	}
	return recordId, nil
}

// BindLedgerId records the derived ledger id for a record. The unique
// index on ledger_id turns a second record hashing to the same ledger
// id into models.ErrIdentifierCollision instead of a silent shared
// entry. Rebinding the same pair is a no-op.
func (r *Repository) BindLedgerId(ctx context.Context, recordId, ledgerId string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_ids (record_id, ledger_id) VALUES ($1, $2)
		 ON CONFLICT (record_id) DO NOTHING`,
		recordId, ledgerId)
	if err == nil {
		bound, lookupErr := r.LookupLedgerId(ctx, recordId)
		if lookupErr != nil {
			return fmt.Errorf("repository.Repository.BindLedgerId: %w", lookupErr)
		}
		if bound != ledgerId {
			return fmt.Errorf("repository.Repository.BindLedgerId: record %s already bound to %s: %w",
				recordId, bound, models.ErrIdentifierCollision)
		}
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("repository.Repository.BindLedgerId: %w", models.ErrIdentifierCollision)
	}
	return fmt.Errorf("repository.Repository.BindLedgerId: %w", err)
}
