package models

import (
	"fmt"
	"time"
)

// ClassRange is one band of class levels sharing a session price.
type ClassRange struct {
	PricePerSession float64 `json:"pricePerSession" validate:"gt=0"`
}

// ClassRanges enumerates the fixed level bands.
type ClassRanges struct {
	Primary   ClassRange `json:"primary" validate:"required"`
	Middle    ClassRange `json:"middle" validate:"required"`
	Secondary ClassRange `json:"secondary" validate:"required"`
	Senior    ClassRange `json:"senior" validate:"required"`
}

// StarterPack is the discounted multi-session bundle.
type StarterPack struct {
	Sessions     int     `json:"sessions" validate:"gte=2"`
	Price        float64 `json:"price" validate:"gt=0"`
	ValidityDays int     `json:"validityDays" validate:"gt=0"`
}

// Pricing is the singleton price configuration.
type Pricing struct {
	Currency    string      `json:"currency" validate:"required,len=3"`
	ClassRanges ClassRanges `json:"classRanges" validate:"required"`
	StarterPack StarterPack `json:"starterPack" validate:"required"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	UpdatedBy   *string     `json:"updatedBy,omitempty"`
}

// Band names used in quotes and chat answers.
const (
	BandPrimary   = "primary"
	BandMiddle    = "middle"
	BandSecondary = "secondary"
	BandSenior    = "senior"
)

// Band returns the range a class level (2-12) falls into.
func (r ClassRanges) Band(classLevel int) (string, ClassRange, error) {
	switch {
	case classLevel >= 2 && classLevel <= 5:
		return BandPrimary, r.Primary, nil
	case classLevel >= 6 && classLevel <= 8:
		return BandMiddle, r.Middle, nil
	case classLevel >= 9 && classLevel <= 10:
		return BandSecondary, r.Secondary, nil
	case classLevel >= 11 && classLevel <= 12:
		return BandSenior, r.Senior, nil
	}
	return "", ClassRange{}, fmt.Errorf("class level %d outside 2-12", classLevel)
}

// PricingRow is the persisted form; the document is stored as JSONB.
type PricingRow struct {
	ID        int       `db:"id"`
	Document  []byte    `db:"document"`
	UpdatedAt time.Time `db:"updated_at"`
	UpdatedBy *string   `db:"updated_by"`
}

// Quote is the computed price for a class level and package.
type Quote struct {
	ClassLevel      int         `json:"classLevel"`
	Band            string      `json:"band"`
	PackageType     PackageType `json:"packageType"`
	Sessions        int         `json:"sessions"`
	PricePerSession float64     `json:"pricePerSession"`
	Amount          float64     `json:"amount"`
	Currency        string      `json:"currency"`
	ValidityDays    int         `json:"validityDays,omitempty"`
}
