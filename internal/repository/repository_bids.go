package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tenderbridge/internal/models"
)

//// Bids

func (r *Repository) CreateBid(ctx context.Context, bid *models.Bid) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO bids (id, tender_id, bidder, amount, proposal, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		bid.Id, bid.TenderId, bid.Bidder, bid.Amount, bid.Proposal, bid.Status).
		Scan(&bid.CreatedAt, &bid.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.Repository.CreateBid: %w", err)
	}
	return nil
}

func (r *Repository) GetBid(ctx context.Context, bidId string) (*models.Bid, error) {
	bid := &models.Bid{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tender_id, bidder, amount, proposal, status, created_at, updated_at
		 FROM bids WHERE id = $1`,
		bidId).
		Scan(&bid.Id, &bid.TenderId, &bid.Bidder, &bid.Amount, &bid.Proposal,
			&bid.Status, &bid.CreatedAt, &bid.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository.Repository.GetBid: %w", models.ErrNoBid)
	}
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetBid: %w", err)
	}
	return bid, nil
}

func (r *Repository) GetBids(ctx context.Context, tenderId string) ([]models.Bid, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tender_id, bidder, amount, proposal, status, created_at, updated_at
		 FROM bids WHERE tender_id = $1 ORDER BY created_at, id`,
		tenderId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetBids: %w", err)
	}
	defer rows.Close()

	bids := []models.Bid{}
	for rows.Next() {
		bid := models.Bid{}
		err = rows.Scan(&bid.Id, &bid.TenderId, &bid.Bidder, &bid.Amount, &bid.Proposal,
			&bid.Status, &bid.CreatedAt, &bid.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetBids: %w", err)
		}
		bids = append(bids, bid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.Repository.GetBids: %w", err)
	}
	return bids, nil
}

// SettleBids resolves every pending bid on a tender once a carrier is
// chosen: the winner's bid becomes accepted, the rest are rejected.
// Both updates land in one transaction so a reader never sees two
// accepted bids.
func (r *Repository) SettleBids(ctx context.Context, tenderId, winner string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository.Repository.SettleBids: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bids SET status = $1, updated_at = now()
		 WHERE tender_id = $2 AND bidder = $3 AND status = $4`,
		models.BidAccepted, tenderId, winner, models.BidPending)
	if err != nil {
		err = fmt.Errorf("repository.Repository.SettleBids: %w", err)
		return wrapRollbackErr(err, tx.Rollback())
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bids SET status = $1, updated_at = now()
		 WHERE tender_id = $2 AND bidder <> $3 AND status = $4`,
		models.BidRejected, tenderId, winner, models.BidPending)
	if err != nil {
		err = fmt.Errorf("repository.Repository.SettleBids: %w", err)
		return wrapRollbackErr(err, tx.Rollback())
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("repository.Repository.SettleBids: %w", err)
	}
	return nil
}
