// Package source adapts the two backing systems, the record store and
// the ledger, to one read surface the reconciliation engine can merge.
package source

import (
	"context"

	"tenderbridge/internal/models"
)

// Connector is one backing system's read view of tenders. Get returns
// models.ErrNotFound for absent tenders, never a zero-filled record.
type Connector interface {
	Name() string
	List(ctx context.Context) ([]models.TenderRecord, error)
	Get(ctx context.Context, tenderId string) (*models.TenderRecord, error)
}
