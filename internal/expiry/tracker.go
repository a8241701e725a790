// Package expiry stamps countdown state onto canonical records.
// Expiry is a view-level fact: the tracker never rewrites a status,
// it only reports how much bidding time remains, and the lifecycle
// guards reject actions on expired tenders.
package expiry

import (
	"context"
	"time"

	"tenderbridge/internal/models"
)

type Tracker struct {
	now func() time.Time
}

// NewTracker builds a tracker on the given clock; nil means wall
// clock.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Decorate stamps every record in the slice and returns it.
func (t *Tracker) Decorate(records []models.TenderRecord) []models.TenderRecord {
	now := t.now()
	for i := range records {
		t.stamp(&records[i], now)
	}
	return records
}

func (t *Tracker) DecorateOne(record *models.TenderRecord) {
	if record != nil {
		t.stamp(record, t.now())
	}
}

func (t *Tracker) stamp(record *models.TenderRecord, now time.Time) {
	record.TimeLeftSeconds = nil
	record.Expired = false
	if record.ExpiresAt.IsZero() || record.Origin == models.OriginSynthetic {
		return
	}

	left := int64(record.ExpiresAt.Sub(now).Round(time.Second) / time.Second)
	if left <= 0 {
		left = 0
		record.Expired = record.Status == models.TenderOpen
	}
	record.TimeLeftSeconds = &left
}

// Run drives a periodic tick until ctx ends, for callers that push
// countdown updates. The callback runs on the tracker's goroutine.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, onTick func(now time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onTick(t.now())
		}
	}
}
