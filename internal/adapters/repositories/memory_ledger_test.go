package repositories

import (
	"context"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/ports"
	"errors"
	"testing"
	"time"
)

func TestMemoryLedgerVersionConflict(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	created := &domain.Shipment{ID: "shp-1", SenderID: "sender-1", Status: domain.ShipmentOpen}
	if err := ledger.Commit(ctx, &ports.ChangeSet{NewShipments: []*domain.Shipment{created}}); err != nil {
		t.Fatalf("commit create: %v", err)
	}

	stored, err := ledger.GetShipment(ctx, "shp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != 1 {
		t.Fatalf("created version = %d, want 1", stored.Version)
	}

	// Two readers take the same snapshot; the second write must lose.
	first := *stored
	second := *stored

	first.Status = domain.ShipmentMatched
	if err := ledger.Commit(ctx, &ports.ChangeSet{Shipments: []*domain.Shipment{&first}}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second.Status = domain.ShipmentCancelled
	err = ledger.Commit(ctx, &ports.ChangeSet{Shipments: []*domain.Shipment{&second}})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale update: err = %v, want ErrVersionConflict", err)
	}

	final, err := ledger.GetShipment(ctx, "shp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.ShipmentMatched || final.Version != 2 {
		t.Fatalf("final = %s v%d, want MATCHED v2", final.Status, final.Version)
	}
}

func TestMemoryLedgerCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	shipment := &domain.Shipment{ID: "shp-1", Status: domain.ShipmentOpen}
	if err := ledger.Commit(ctx, &ports.ChangeSet{NewShipments: []*domain.Shipment{shipment}}); err != nil {
		t.Fatalf("commit create: %v", err)
	}

	// A changeset pairing a fresh offer with a stale shipment update must
	// leave no trace of either write.
	stale := *shipment // version 0, stored row is version 1
	stale.Status = domain.ShipmentMatched
	offer := &domain.Offer{ID: "off-1", ShipmentID: "shp-1", CourierID: "courier-1", Status: domain.OfferPending}

	err := ledger.Commit(ctx, &ports.ChangeSet{
		NewOffers: []*domain.Offer{offer},
		Shipments: []*domain.Shipment{&stale},
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}

	if _, err := ledger.GetOffer(ctx, "off-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("offer leaked from failed commit: err = %v", err)
	}
	kept, err := ledger.GetShipment(ctx, "shp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if kept.Status != domain.ShipmentOpen {
		t.Fatalf("shipment mutated by failed commit: %s", kept.Status)
	}
}

func TestMemoryLedgerLookups(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cs := &ports.ChangeSet{
		NewShipments: []*domain.Shipment{{ID: "shp-1", Status: domain.ShipmentOpen}},
		NewOffers: []*domain.Offer{
			{ID: "off-2", ShipmentID: "shp-1", CourierID: "courier-2", Status: domain.OfferPending, CreatedAt: base.Add(time.Minute)},
			{ID: "off-1", ShipmentID: "shp-1", CourierID: "courier-1", Status: domain.OfferRejected, CreatedAt: base},
		},
		NewTransactions: []*domain.Transaction{
			{ID: "tx-1", ShipmentID: "shp-1", Status: domain.TransactionReleasing, UpdatedAt: base},
			{ID: "tx-2", ShipmentID: "shp-2", Status: domain.TransactionHeld, UpdatedAt: base},
		},
	}
	if err := ledger.Commit(ctx, cs); err != nil {
		t.Fatalf("commit: %v", err)
	}

	offers, err := ledger.ListOffersByShipment(ctx, "shp-1")
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(offers) != 2 || offers[0].ID != "off-1" || offers[1].ID != "off-2" {
		t.Fatalf("offers out of order: %+v", offers)
	}

	// Rejected offers do not count as open.
	if _, err := ledger.FindOpenOffer(ctx, "shp-1", "courier-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("find open offer for rejected bid: err = %v", err)
	}
	open, err := ledger.FindOpenOffer(ctx, "shp-1", "courier-2")
	if err != nil || open.ID != "off-2" {
		t.Fatalf("find open offer = %+v, %v", open, err)
	}

	// Only settling rows older than the cutoff are reported.
	settling, err := ledger.ListSettlingTransactions(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list settling: %v", err)
	}
	if len(settling) != 1 || settling[0].ID != "tx-1" {
		t.Fatalf("settling = %+v, want tx-1 only", settling)
	}
	settling, err = ledger.ListSettlingTransactions(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list settling: %v", err)
	}
	if len(settling) != 0 {
		t.Fatalf("settling before cutoff = %+v, want none", settling)
	}
}
