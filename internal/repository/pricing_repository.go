package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// PricingRepository stores the singleton pricing document as JSONB in row id 1.
type PricingRepository struct {
	db *sqlx.DB
}

// NewPricingRepository constructs a PricingRepository.
func NewPricingRepository(db *sqlx.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

// Get returns the current pricing; sql.ErrNoRows when it was never configured.
func (r *PricingRepository) Get(ctx context.Context) (*models.Pricing, error) {
	var row models.PricingRow
	if err := r.db.GetContext(ctx, &row, "SELECT id, document, updated_at, updated_by FROM pricing WHERE id = 1"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get pricing: %w", err)
	}
	var pricing models.Pricing
	if err := json.Unmarshal(row.Document, &pricing); err != nil {
		return nil, fmt.Errorf("decode pricing document: %w", err)
	}
	pricing.UpdatedAt = row.UpdatedAt
	pricing.UpdatedBy = row.UpdatedBy
	return &pricing, nil
}

// Save replaces the pricing document wholesale.
func (r *PricingRepository) Save(ctx context.Context, pricing *models.Pricing) error {
	pricing.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(pricing)
	if err != nil {
		return fmt.Errorf("encode pricing document: %w", err)
	}
	const query = `INSERT INTO pricing (id, document, updated_at, updated_by) VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by`
	if _, err := r.db.ExecContext(ctx, query, doc, pricing.UpdatedAt, pricing.UpdatedBy); err != nil {
		return fmt.Errorf("save pricing: %w", err)
	}
	return nil
}
