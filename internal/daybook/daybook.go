package daybook

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNonPositiveAmount is returned when an accrual is zero or negative.
// Corrections are modeled as new entries, never as decrements.
var ErrNonPositiveAmount = errors.New("amount must be positive")

// Book is an append-only day-bucketed quantity ledger. Buckets are keyed
// by (entityID, dayIndex) and only ever grow; the sum of an entity's
// buckets always equals the lifetime total recorded against it.
//
// Book is not safe for concurrent use; callers serialize access.
type Book struct {
	buckets map[uint64]map[int64]decimal.Decimal
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		buckets: make(map[uint64]map[int64]decimal.Decimal),
	}
}

// Accrue adds amount to the bucket for (entityID, day), creating the
// bucket on first use.
func (b *Book) Accrue(entityID uint64, day int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}

	days, ok := b.buckets[entityID]
	if !ok {
		days = make(map[int64]decimal.Decimal)
		b.buckets[entityID] = days
	}
	days[day] = days[day].Add(amount)
	return nil
}

// Amount returns the accumulated quantity for (entityID, day), or zero
// if the bucket was never touched. It never fails.
func (b *Book) Amount(entityID uint64, day int64) decimal.Decimal {
	return b.buckets[entityID][day]
}

// Total sums every bucket recorded for entityID.
func (b *Book) Total(entityID uint64) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range b.buckets[entityID] {
		total = total.Add(amount)
	}
	return total
}

// Days returns how many distinct day buckets exist for entityID.
func (b *Book) Days(entityID uint64) int {
	return len(b.buckets[entityID])
}
