package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// FindProductByID retrieves a product by ID. Returns (nil, nil) when absent.
func (s *Store) FindProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY name")
	return products, err
}

// decrementStock deducts quantity from a product's stock only if enough
// remains. Returning whether a row was affected is the atomic guard against
// concurrent approvals draining the same product below zero.
func decrementStock(ctx context.Context, ext sqlx.ExtContext, productID int64, quantity int) (bool, error) {
	res, err := ext.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindOrCreateCustomer upserts a customer by unique email. An existing
// customer keeps its stored full name.
func (s *Store) FindOrCreateCustomer(ctx context.Context, email, fullName string) (*models.Customer, error) {
	var customer models.Customer
	query := `
		INSERT INTO customers (email, full_name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, full_name, created_at`

	err := s.db.GetContext(ctx, &customer, query, email, fullName)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}
	return &customer, nil
}

// CreateDelivery creates a new delivery row
func (s *Store) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	query := `
		INSERT INTO deliveries (address, city, region, phone, postal_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, delivery, query,
		delivery.Address, delivery.City, delivery.Region, delivery.Phone, delivery.PostalCode)
}

// IsEventProcessed checks if a lifecycle event has been recorded
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed records a lifecycle event
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
