package plants

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/energychain/internal/daybook"
	"github.com/terminal-bench/energychain/internal/identity"
)

var (
	// ErrNotFound is returned when a plant id is 0 or unassigned.
	ErrNotFound = errors.New("powerplant does not exist")

	// ErrNoSuchPlant is returned when the caller owns no plant.
	ErrNoSuchPlant = errors.New("powerplant does not exist or caller is not the owner")

	// ErrInsufficientAvailability is returned when a sale exceeds the
	// plant's available energy.
	ErrInsufficientAvailability = errors.New("insufficient energy available to buy")
)

// PowerPlant is a production-side entity. AvailableToBuy always equals
// TotalProduced minus TotalSold; both totals only grow.
type PowerPlant struct {
	ID             uint64
	Owner          string
	Name           string
	Area           string
	TotalProduced  decimal.Decimal
	TotalSold      decimal.Decimal
	AvailableToBuy decimal.Decimal
}

// Ledger owns power plant records and their produced/sold day books.
// It is not safe for concurrent use; the chain serializes access.
type Ledger struct {
	registry *identity.Registry
	plants   map[uint64]*PowerPlant
	produced *daybook.Book
	sold     *daybook.Book
	nextID   uint64
}

// NewLedger creates an empty power plant ledger backed by registry.
func NewLedger(registry *identity.Registry) *Ledger {
	return &Ledger{
		registry: registry,
		plants:   make(map[uint64]*PowerPlant),
		produced: daybook.NewBook(),
		sold:     daybook.NewBook(),
	}
}

// Create registers a new plant for owner and seeds its production with
// initialEnergy, accrued into the bucket for day. One plant per owner.
func (l *Ledger) Create(owner, name, area string, initialEnergy decimal.Decimal, day int64) (PowerPlant, error) {
	if initialEnergy.IsNegative() {
		return PowerPlant{}, daybook.ErrNonPositiveAmount
	}

	id := l.nextID + 1
	if err := l.registry.Register(identity.RolePowerPlant, owner, id); err != nil {
		return PowerPlant{}, err
	}
	l.nextID = id

	plant := &PowerPlant{
		ID:             id,
		Owner:          owner,
		Name:           name,
		Area:           area,
		TotalProduced:  initialEnergy,
		TotalSold:      decimal.Zero,
		AvailableToBuy: initialEnergy,
	}
	l.plants[id] = plant

	if initialEnergy.IsPositive() {
		l.produced.Accrue(id, day, initialEnergy)
	}
	return *plant, nil
}

// AddEnergy increases the caller's plant production and availability by
// amount, accruing into the bucket for day. Same-day calls accumulate
// into one bucket regardless of intra-day timing.
func (l *Ledger) AddEnergy(owner string, amount decimal.Decimal, day int64) (PowerPlant, error) {
	if !amount.IsPositive() {
		return PowerPlant{}, daybook.ErrNonPositiveAmount
	}

	id, err := l.registry.Authorize(identity.RolePowerPlant, owner)
	if err != nil {
		return PowerPlant{}, fmt.Errorf("%w: %s", ErrNoSuchPlant, owner)
	}
	plant := l.plants[id]

	plant.TotalProduced = plant.TotalProduced.Add(amount)
	plant.AvailableToBuy = plant.AvailableToBuy.Add(amount)
	l.produced.Accrue(id, day, amount)
	return *plant, nil
}

// SellTo records a sale of amount from plant id, accruing into the sold
// bucket for day. Invoked by the substation ledger as one half of a
// purchase; all checks run before any mutation.
func (l *Ledger) SellTo(id uint64, amount decimal.Decimal, day int64) error {
	if !amount.IsPositive() {
		return daybook.ErrNonPositiveAmount
	}
	plant, ok := l.plants[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if amount.GreaterThan(plant.AvailableToBuy) {
		return fmt.Errorf("%w: plant %d has %s, want %s",
			ErrInsufficientAvailability, id, plant.AvailableToBuy, amount)
	}

	plant.AvailableToBuy = plant.AvailableToBuy.Sub(amount)
	plant.TotalSold = plant.TotalSold.Add(amount)
	l.sold.Accrue(id, day, amount)
	return nil
}

// ByID returns a snapshot of the plant, failing if id is 0 or unassigned.
func (l *Ledger) ByID(id uint64) (PowerPlant, error) {
	plant, ok := l.plants[id]
	if !ok {
		return PowerPlant{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return *plant, nil
}

// Exists reports whether id is an assigned plant id.
func (l *Ledger) Exists(id uint64) bool {
	_, ok := l.plants[id]
	return ok
}

// ProducedOn returns the energy produced by plant id on day, zero if none.
func (l *Ledger) ProducedOn(id uint64, day int64) decimal.Decimal {
	return l.produced.Amount(id, day)
}

// SoldOn returns the energy sold by plant id on day, zero if none.
func (l *Ledger) SoldOn(id uint64, day int64) decimal.Decimal {
	return l.sold.Amount(id, day)
}

// ProducedTotal sums the produced book for plant id across all days.
func (l *Ledger) ProducedTotal(id uint64) decimal.Decimal {
	return l.produced.Total(id)
}

// SoldTotal sums the sold book for plant id across all days.
func (l *Ledger) SoldTotal(id uint64) decimal.Decimal {
	return l.sold.Total(id)
}

// Count returns the number of registered plants.
func (l *Ledger) Count() int {
	return len(l.plants)
}
