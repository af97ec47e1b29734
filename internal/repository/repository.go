package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"vda5050-bridge/internal/config"
	"vda5050-bridge/internal/models"
)

// OrderRecord is an order as it was sent to the vehicle.
type OrderRecord struct {
	ID            uint   `gorm:"primaryKey"`
	SerialNumber  string `gorm:"index"`
	OrderID       string `gorm:"index"`
	OrderUpdateID uint32
	HeaderID      uint32
	Payload       string `gorm:"type:text"`
	SentAt        time.Time
	CreatedAt     time.Time
}

// Order decodes the stored payload.
func (r OrderRecord) Order() (*models.Order, error) {
	var o models.Order
	if err := json.Unmarshal([]byte(r.Payload), &o); err != nil {
		return nil, fmt.Errorf("decode order %s/%d: %w", r.OrderID, r.OrderUpdateID, err)
	}
	return &o, nil
}

// ConnectionEvent is one connection message received from the vehicle.
type ConnectionEvent struct {
	ID              uint   `gorm:"primaryKey"`
	SerialNumber    string `gorm:"index"`
	Manufacturer    string
	ConnectionState string
	HeaderID        uint32
	Timestamp       string
	CreatedAt       time.Time
}

// FactsheetRecord is the latest factsheet of a vehicle.
type FactsheetRecord struct {
	ID                uint   `gorm:"primaryKey"`
	SerialNumber      string `gorm:"uniqueIndex"`
	Manufacturer      string
	Version           string
	SeriesName        string
	AgvClass          string
	AgvKinematic      string
	MaxLoadMass       float64
	SpeedMax          float64
	LocalizationTypes string `gorm:"type:text"`
	Payload           string `gorm:"type:text"`
	ReceivedAt        time.Time
	UpdatedAt         time.Time
}

// Factsheet decodes the stored payload.
func (r FactsheetRecord) Factsheet() (*models.Factsheet, error) {
	var f models.Factsheet
	if err := json.Unmarshal([]byte(r.Payload), &f); err != nil {
		return nil, fmt.Errorf("decode factsheet %s: %w", r.SerialNumber, err)
	}
	return &f, nil
}

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DBDriverPostgres:
		dialector = postgres.Open(cfg.PostgresDSN())
	case config.DBDriverSQLite:
		dialector = sqlite.Dialector{DriverName: "sqlite", DSN: cfg.DBPath}
	case config.DBDriverNone, "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderRecord{}, &ConnectionEvent{}, &FactsheetRecord{})
}

// Repository stores sent orders and connection history.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveOrder records an order sent to the vehicle with the given serial number.
func (r *Repository) SaveOrder(ctx context.Context, serialNumber string, o *models.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	rec := &OrderRecord{
		SerialNumber:  serialNumber,
		OrderID:       o.OrderID,
		OrderUpdateID: o.OrderUpdateID,
		HeaderID:      o.HeaderID,
		Payload:       string(payload),
		SentAt:        time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return &RepositoryError{Operation: "create", Table: "order_records", Cause: err}
	}
	return nil
}

// OrdersByID returns all sent versions of an order, oldest update first.
func (r *Repository) OrdersByID(ctx context.Context, orderID string) ([]OrderRecord, error) {
	var records []OrderRecord
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("order_update_id ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, &RepositoryError{Operation: "query", Table: "order_records", Cause: err}
	}
	return records, nil
}

// SaveConnectionEvent appends a connection message to the history.
func (r *Repository) SaveConnectionEvent(ctx context.Context, c *models.Connection) error {
	ev := &ConnectionEvent{
		SerialNumber:    c.SerialNumber,
		Manufacturer:    c.Manufacturer,
		ConnectionState: c.ConnectionState,
		HeaderID:        c.HeaderID,
		Timestamp:       c.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return &RepositoryError{Operation: "create", Table: "connection_events", Cause: err}
	}
	return nil
}

// LatestConnectionEvent returns the most recent connection message of a vehicle.
func (r *Repository) LatestConnectionEvent(ctx context.Context, serialNumber string) (*ConnectionEvent, error) {
	var ev ConnectionEvent
	err := r.db.WithContext(ctx).
		Where("serial_number = ?", serialNumber).
		Order("id DESC").
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &EntityNotFoundError{Table: "connection_events", Identifier: "serial_number " + serialNumber}
	}
	if err != nil {
		return nil, &RepositoryError{Operation: "query", Table: "connection_events", Cause: err}
	}
	return &ev, nil
}

// SaveFactsheet creates or replaces the factsheet of the sending vehicle.
func (r *Repository) SaveFactsheet(ctx context.Context, f *models.Factsheet) error {
	if f.SerialNumber == "" {
		return &models.ValidationError{Field: "serialNumber", Message: "must not be empty"}
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode factsheet: %w", err)
	}
	localization, err := json.Marshal(f.TypeSpecification.LocalizationTypes)
	if err != nil {
		return fmt.Errorf("encode localization types: %w", err)
	}
	rec := FactsheetRecord{
		SerialNumber:      f.SerialNumber,
		Manufacturer:      f.Manufacturer,
		Version:           f.Version,
		SeriesName:        f.TypeSpecification.SeriesName,
		AgvClass:          f.TypeSpecification.AgvClass,
		AgvKinematic:      f.TypeSpecification.AgvKinematic,
		MaxLoadMass:       f.TypeSpecification.MaxLoadMass,
		SpeedMax:          f.PhysicalParameters.SpeedMax,
		LocalizationTypes: string(localization),
		Payload:           string(payload),
		ReceivedAt:        time.Now().UTC(),
	}

	db := r.db.WithContext(ctx)
	var existing FactsheetRecord
	err = db.Where("serial_number = ?", f.SerialNumber).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(&rec).Error; err != nil {
			return &RepositoryError{Operation: "create", Table: "factsheet_records", Cause: err}
		}
	case err != nil:
		return &RepositoryError{Operation: "query", Table: "factsheet_records", Cause: err}
	default:
		rec.ID = existing.ID
		if err := db.Save(&rec).Error; err != nil {
			return &RepositoryError{Operation: "update", Table: "factsheet_records", Cause: err}
		}
	}
	return nil
}

// FactsheetBySerial returns the stored factsheet of a vehicle.
func (r *Repository) FactsheetBySerial(ctx context.Context, serialNumber string) (*FactsheetRecord, error) {
	var rec FactsheetRecord
	err := r.db.WithContext(ctx).Where("serial_number = ?", serialNumber).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &EntityNotFoundError{Table: "factsheet_records", Identifier: "serial_number " + serialNumber}
	}
	if err != nil {
		return nil, &RepositoryError{Operation: "query", Table: "factsheet_records", Cause: err}
	}
	return &rec, nil
}
