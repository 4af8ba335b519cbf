package services

import (
	"fmt"
	"math"

	"github.com/nimasrn/bigchat/internal/model"
)

// Pricing is the read-only price table, parsed once at start.
type Pricing struct {
	Normal model.Cents `json:"normal"`
	Urgent model.Cents `json:"urgent"`
}

func NewPricing(normal, urgent string) (Pricing, error) {
	n, err := model.ParseCents(normal)
	if err != nil {
		return Pricing{}, fmt.Errorf("normal price: %w", err)
	}
	u, err := model.ParseCents(urgent)
	if err != nil {
		return Pricing{}, fmt.Errorf("urgent price: %w", err)
	}
	if n < 0 || u < 0 {
		return Pricing{}, fmt.Errorf("prices must not be negative")
	}
	return Pricing{Normal: n, Urgent: u}, nil
}

func (p Pricing) Price(priority model.Priority) model.Cents {
	if priority == model.PriorityUrgent {
		return p.Urgent
	}
	return p.Normal
}

// Pagination holds the page size defaults.
type Pagination struct {
	Default int
	Max     int
}

var DefaultPagination = Pagination{Default: 20, Max: 100}

// maxOffset keeps (page-1)*limit far from overflowing on any platform.
const maxOffset = math.MaxInt32

// Normalize returns a 1-based page and a limit within [1, Max]. Pages past
// maxOffset are pinned just beyond it so they come back empty.
func (p Pagination) Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = p.Default
	}
	if limit > p.Max {
		limit = p.Max
	}
	if lastPage := maxOffset/limit + 1; page > lastPage {
		page = lastPage
	}
	return page, limit
}

func offset(page, limit int) int {
	return (page - 1) * limit
}
