package source

import (
	"context"
	"fmt"

	"tenderbridge/internal/models"
)

// TenderStore is the slice of the repository the store connector
// needs.
type TenderStore interface {
	GetTenders(ctx context.Context, filter models.TenderFilter) ([]models.TenderRecord, error)
	GetTender(ctx context.Context, tenderId string) (*models.TenderRecord, error)
}

// StoreConnector reads the record store. The store is always
// reachable; an error here is a hard fault, not a degradation.
type StoreConnector struct {
	store TenderStore
}

func NewStoreConnector(store TenderStore) *StoreConnector {
	return &StoreConnector{store: store}
}

func (c *StoreConnector) Name() string {
	return "record-store"
}

func (c *StoreConnector) List(ctx context.Context) ([]models.TenderRecord, error) {
	tenders, err := c.store.GetTenders(ctx, models.TenderFilter{})
	if err != nil {
		return nil, fmt.Errorf("source.StoreConnector.List: %w", err)
	}
	return tenders, nil
}

func (c *StoreConnector) Get(ctx context.Context, tenderId string) (*models.TenderRecord, error) {
	tender, err := c.store.GetTender(ctx, tenderId)
	if err != nil {
		return nil, fmt.Errorf("source.StoreConnector.Get: %w", err)
	}
	return tender, nil
}
