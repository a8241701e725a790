package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenderbridge/internal/models"
)

const tenderColumns = `t.id, t.title, t.description, t.budget, t.deadline, t.expires_at,
	t.status, t.creator, t.assignee, t.distance_km, t.weight_kg, t.cargo_type,
	t.urgency_days, t.created_at, t.updated_at, COALESCE(l.ledger_id, '')`

//// Tenders

func (r *Repository) CreateTender(ctx context.Context, tender *models.TenderRecord) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tenders
			(id, title, description, budget, deadline, expires_at, status, creator,
			 assignee, distance_km, weight_kg, cargo_type, urgency_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		tender.Id, tender.Title, tender.Description, tender.Budget,
		nullTime(tender.Deadline), nullTime(tender.ExpiresAt), tender.Status,
		tender.Creator, tender.Assignee, tender.Cargo.DistanceKm, tender.Cargo.WeightKg,
		tender.Cargo.CargoType, tender.Cargo.UrgencyDays).
		Scan(&tender.CreatedAt, &tender.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.Repository.CreateTender: %w", err)
	}
	return nil
}

func (r *Repository) GetTender(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenderColumns+`
		 FROM tenders t
		 LEFT JOIN ledger_ids l ON l.record_id = t.id
		 WHERE t.id = $1`,
		tenderId)

	tender, err := scanTender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository.Repository.GetTender: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetTender: %w", err)
	}
	return tender, nil
}

func (r *Repository) GetTenders(ctx context.Context, filter models.TenderFilter) ([]models.TenderRecord, error) {
	query := `SELECT ` + tenderColumns + `
		 FROM tenders t
		 LEFT JOIN ledger_ids l ON l.record_id = t.id
		 $conditions
		 ORDER BY t.created_at DESC, t.id`

	conditions := []string{}
	args := []any{}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Creator != "" {
		conditions = append(conditions, fmt.Sprintf("t.creator = $%d", len(args)+1))
		args = append(args, filter.Creator)
	}
	if filter.Assignee != "" {
		conditions = append(conditions, fmt.Sprintf("t.assignee = $%d", len(args)+1))
		args = append(args, filter.Assignee)
	}

	if len(conditions) > 0 {
		query = strings.Replace(query, "$conditions", "WHERE "+strings.Join(conditions, " AND "), 1)
	} else {
		query = strings.Replace(query, "$conditions", "", 1)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetTenders: %w", err)
	}
	defer rows.Close()

	tenders := []models.TenderRecord{}
	for rows.Next() {
		tender, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetTenders: %w", err)
		}
		tenders = append(tenders, *tender)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.Repository.GetTenders: %w", err)
	}
	return tenders, nil
}

// UpdateTenderState applies the outcome of a lifecycle action. Status
// and assignee are the only fields another party can change; the rest
// of the row belongs to the creator.
func (r *Repository) UpdateTenderState(ctx context.Context, tenderId string, status models.TenderStatus, assignee string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tenders SET status = $1, assignee = $2, updated_at = now() WHERE id = $3`,
		status, assignee, tenderId)
	if err != nil {
		return fmt.Errorf("repository.Repository.UpdateTenderState: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository.Repository.UpdateTenderState: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("repository.Repository.UpdateTenderState: %w", models.ErrNotFound)
	}
	return nil
}

//// Scanning

type scannable interface {
	Scan(dest ...any) error
}

func scanTender(row scannable) (*models.TenderRecord, error) {
	var (
		tender   models.TenderRecord
		deadline sql.NullTime
		expires  sql.NullTime
	)
	err := row.Scan(&tender.Id, &tender.Title, &tender.Description, &tender.Budget,
		&deadline, &expires, &tender.Status, &tender.Creator, &tender.Assignee,
		&tender.Cargo.DistanceKm, &tender.Cargo.WeightKg, &tender.Cargo.CargoType,
		&tender.Cargo.UrgencyDays, &tender.CreatedAt, &tender.UpdatedAt, &tender.LedgerId)
	if err != nil {
		return nil, err
	}

	tender.Deadline = deadline.Time
	tender.ExpiresAt = expires.Time
	tender.Origin = models.OriginStore
	return &tender, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
