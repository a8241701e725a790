package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"tenderbridge/internal/models"
)

func TestTenders(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	counts := map[string]int{"alice": 1, "bob": 2, "carol": 3}
	total := 0
	byCreator := map[string][]*models.TenderRecord{}
	for creator, count := range counts {
		for i := 0; i < count; i++ {
			byCreator[creator] = append(byCreator[creator], AddTestTender(t, repo, creator))
			total++
		}
	}

	// full listing has every inserted tender
	tenders, err := repo.GetTenders(ctx, models.TenderFilter{})
	if err != nil {
		t.Fatalf("Could not get tenders: %s", err)
	}
	if len(tenders) != total {
		t.Fatalf("Amount of added and received tenders does not match: %d - %d", total, len(tenders))
	}
	for _, tender := range tenders {
		if tender.Origin != models.OriginStore {
			t.Errorf("Expected store origin on tender '%s', got '%s'", tender.Id, tender.Origin)
		}
	}

	// creator filter narrows to that creator's tenders
	for creator, count := range counts {
		tenders, err = repo.GetTenders(ctx, models.TenderFilter{Creator: creator})
		if err != nil {
			t.Fatalf("Could not get tenders of creator '%s': %s", creator, err)
		}
		if len(tenders) != count {
			t.Errorf("Expected %d tenders for creator '%s', got %d", count, creator, len(tenders))
		}
		for _, tender := range tenders {
			if tender.Creator != creator {
				t.Errorf("Received tender of creator '%s' while filtering by '%s'", tender.Creator, creator)
			}
		}
	}

	// status and assignee filters
	awarded := byCreator["carol"][0]
	err = repo.UpdateTenderState(ctx, awarded.Id, models.TenderAwarded, "dave")
	if err != nil {
		t.Fatalf("Could not update tender state: %s", err)
	}

	tenders, err = repo.GetTenders(ctx, models.TenderFilter{Status: models.TenderAwarded})
	if err != nil {
		t.Fatalf("Could not get awarded tenders: %s", err)
	}
	if len(tenders) != 1 || tenders[0].Id != awarded.Id {
		t.Errorf("Expected exactly the awarded tender, got %d entries", len(tenders))
	}

	tenders, err = repo.GetTenders(ctx, models.TenderFilter{Assignee: "dave"})
	if err != nil {
		t.Fatalf("Could not get tenders by assignee: %s", err)
	}
	if len(tenders) != 1 || tenders[0].Assignee != "dave" {
		t.Errorf("Expected exactly one tender assigned to dave, got %d entries", len(tenders))
	}

	// single fetch returns the stored fields
	stored := byCreator["alice"][0]
	tender, err := repo.GetTender(ctx, stored.Id)
	if err != nil {
		t.Fatalf("Could not get tender '%s': %s", stored.Id, err)
	}
	if tender.Title != stored.Title || tender.Description != stored.Description ||
		tender.Budget != stored.Budget || tender.Creator != stored.Creator {
		t.Errorf("Stored and fetched tenders do not match:\n%v\n%v", stored, tender)
	}
	if tender.Cargo != stored.Cargo {
		t.Errorf("Stored and fetched cargo do not match: %v - %v", stored.Cargo, tender.Cargo)
	}
	if tender.Deadline.Unix() != stored.Deadline.Unix() {
		t.Errorf("Stored and fetched deadlines do not match: %s - %s", stored.Deadline, tender.Deadline)
	}
	if tender.ExpiresAt.Unix() != stored.ExpiresAt.Unix() {
		t.Errorf("Stored and fetched expiries do not match: %s - %s", stored.ExpiresAt, tender.ExpiresAt)
	}
	if tender.LedgerId != "" {
		t.Errorf("Expected no ledger id before binding, got '%s'", tender.LedgerId)
	}

	_, err = repo.GetTender(ctx, uuid.NewString())
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing tender, got %v", err)
	}
}

func TestUpdateTenderState(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	tender := AddTestTender(t, repo, "alice")

	err := repo.UpdateTenderState(ctx, tender.Id, models.TenderAwarded, "bob")
	if err != nil {
		t.Fatalf("Could not update tender state: %s", err)
	}

	updated, err := repo.GetTender(ctx, tender.Id)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.TenderAwarded {
		t.Errorf("Expected status '%s', got '%s'", models.TenderAwarded, updated.Status)
	}
	if updated.Assignee != "bob" {
		t.Errorf("Expected assignee 'bob', got '%s'", updated.Assignee)
	}
	if updated.UpdatedAt.Before(tender.UpdatedAt) {
		t.Error("Expected UpdatedAt to advance on state change")
	}

	// completing clears nothing else on the row
	err = repo.UpdateTenderState(ctx, tender.Id, models.TenderCompleted, "bob")
	if err != nil {
		t.Fatal(err)
	}
	updated, err = repo.GetTender(ctx, tender.Id)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.TenderCompleted || updated.Title != tender.Title {
		t.Errorf("Completion changed more than the state: %v", updated)
	}

	err = repo.UpdateTenderState(ctx, uuid.NewString(), models.TenderAwarded, "bob")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing tender, got %v", err)
	}
}
