package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"vda5050-bridge/internal/config"
	"vda5050-bridge/internal/models"
)

func openTestDB(t *testing.T) *Repository {
	t.Helper()
	cfg := &config.Config{DBDriver: config.DBDriverSQLite, DBPath: filepath.Join(t.TempDir(), "bridge_test.db")}
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewRepository(db)
}

func TestOrders(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	for _, update := range []uint32{1, 0} {
		o := &models.Order{
			Header:        models.Header{HeaderID: 10 + update},
			OrderID:       "TOrder-1",
			OrderUpdateID: update,
			Nodes:         []models.Node{{NodeID: "P0", Released: true, Actions: []models.Action{}}},
			Edges:         []models.Edge{},
		}
		if err := repo.SaveOrder(ctx, "agv-1", o); err != nil {
			t.Fatalf("save order: %v", err)
		}
	}
	if err := repo.SaveOrder(ctx, "agv-1", &models.Order{OrderID: "other"}); err != nil {
		t.Fatalf("save order: %v", err)
	}

	records, err := repo.OrdersByID(ctx, "TOrder-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 2 || records[0].OrderUpdateID != 0 || records[1].OrderUpdateID != 1 {
		t.Fatalf("unexpected records: %+v", records)
	}
	o, err := records[1].Order()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.HeaderID != 11 || o.Nodes[0].NodeID != "P0" {
		t.Errorf("unexpected payload: %+v", o)
	}
}

func TestConnectionEvents(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	_, err := repo.LatestConnectionEvent(ctx, "agv-1")
	var notFound *EntityNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected EntityNotFoundError, got %v", err)
	}

	for i, state := range []string{"ONLINE", "CONNECTIONBROKEN"} {
		c := &models.Connection{
			Header:          models.Header{HeaderID: uint32(i), SerialNumber: "agv-1", Manufacturer: "acme"},
			ConnectionState: state,
		}
		if err := repo.SaveConnectionEvent(ctx, c); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	ev, err := repo.LatestConnectionEvent(ctx, "agv-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if ev.ConnectionState != "CONNECTIONBROKEN" || ev.HeaderID != 1 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestOpenDisabled(t *testing.T) {
	if _, err := Open(&config.Config{DBDriver: config.DBDriverNone}); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestFactsheets(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	if err := repo.SaveFactsheet(ctx, &models.Factsheet{}); err == nil {
		t.Fatal("expected an error for a factsheet without serial number")
	}

	f := &models.Factsheet{
		Header: models.Header{SerialNumber: "agv-1", Manufacturer: "acme", Version: "2.0.0"},
		TypeSpecification: models.TypeSpecification{
			SeriesName:        "Series A",
			AgvKinematic:      "DIFF",
			AgvClass:          "CARRIER",
			LocalizationTypes: []string{"NATURAL"},
		},
		PhysicalParameters: models.PhysicalParameters{SpeedMax: 1.5},
	}
	if err := repo.SaveFactsheet(ctx, f); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.TypeSpecification.SeriesName = "Series B"
	if err := repo.SaveFactsheet(ctx, f); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, err := repo.FactsheetBySerial(ctx, "agv-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rec.SeriesName != "Series B" || rec.SpeedMax != 1.5 || rec.LocalizationTypes != `["NATURAL"]` {
		t.Errorf("unexpected record %+v", rec)
	}
	decoded, err := rec.Factsheet()
	if err != nil || decoded.TypeSpecification.AgvKinematic != "DIFF" {
		t.Errorf("unexpected payload %+v (%v)", decoded, err)
	}

	var notFound *EntityNotFoundError
	if _, err := repo.FactsheetBySerial(ctx, "agv-2"); !errors.As(err, &notFound) {
		t.Errorf("expected EntityNotFoundError, got %v", err)
	}
}
