package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a search batch.
type BatchStatus string

const (
	BatchStatusPending        BatchStatus = "PENDING"
	BatchStatusFetching       BatchStatus = "FETCHING"
	BatchStatusPartiallyReady BatchStatus = "PARTIALLY_READY"
	BatchStatusReady          BatchStatus = "READY"
	BatchStatusAssembled      BatchStatus = "ASSEMBLED"
	BatchStatusFailed         BatchStatus = "FAILED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusPending, BatchStatusFetching, BatchStatusPartiallyReady,
		BatchStatusReady, BatchStatusAssembled, BatchStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the batch can no longer change state.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusAssembled || s == BatchStatusFailed
}

// Category represents the kind of search the batch serves.
type Category string

const (
	CategoryLive     Category = "LIVE"
	CategoryEconomic Category = "ECONOMIC"
	CategoryWeekend  Category = "WEEKEND"
	CategoryHoliday  Category = "HOLIDAY"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryLive, CategoryEconomic, CategoryWeekend, CategoryHoliday:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// Pax describes the passenger composition of a search.
type Pax struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

func (p Pax) Total() int { return p.Adults + p.Children + p.Infants }

func (p Pax) Validate() error {
	if p.Adults < 1 {
		return fmt.Errorf("%w: at least one adult is required", ErrValidation)
	}
	if p.Children < 0 || p.Infants < 0 {
		return fmt.Errorf("%w: negative passenger count", ErrValidation)
	}
	return nil
}

// SearchBatch is one logical search request tracked end-to-end through
// fetch, selection, and assembly. IDs are minted once and never reused.
type SearchBatch struct {
	ID          string
	SweepID     *string
	Origin      string
	Destination string
	DepartDate  time.Time
	ReturnDate  time.Time
	Pax         Pax
	Category    Category
	Status      BatchStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b *SearchBatch) Validate() error {
	if strings.TrimSpace(b.Origin) == "" {
		return fmt.Errorf("%w: origin is required", ErrValidation)
	}
	if strings.TrimSpace(b.Destination) == "" {
		return fmt.Errorf("%w: destination is required", ErrValidation)
	}
	if strings.EqualFold(b.Origin, b.Destination) {
		return fmt.Errorf("%w: origin and destination must differ", ErrValidation)
	}
	if !b.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, b.Category)
	}
	if b.ReturnDate.Before(b.DepartDate) {
		return fmt.Errorf("%w: return date before departure date", ErrValidation)
	}
	return b.Pax.Validate()
}

// Nights returns the stay length implied by the date window.
func (b *SearchBatch) Nights() int {
	return int(b.ReturnDate.Sub(b.DepartDate).Hours() / 24)
}
