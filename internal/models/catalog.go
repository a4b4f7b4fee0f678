package models

import "time"

type Service struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description,omitempty"`
	DurationMin int       `yaml:"duration_min" json:"duration_min"`
	PriceCents  int64     `yaml:"price_cents" json:"price_cents"`
	SortOrder   int64     `yaml:"sort_order" json:"sort_order"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

type AddOn struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	DurationMin int       `yaml:"duration_min" json:"duration_min"`
	PriceCents  int64     `yaml:"price_cents" json:"price_cents"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

// Catalog is the seed file layout.
type Catalog struct {
	Services []Service `yaml:"services"`
	AddOns   []AddOn   `yaml:"add_ons"`
}
