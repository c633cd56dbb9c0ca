package substations

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/energychain/internal/daybook"
	"github.com/terminal-bench/energychain/internal/identity"
	"github.com/terminal-bench/energychain/internal/plants"
)

var (
	// ErrNotFound is returned when a substation id is 0 or unassigned.
	ErrNotFound = errors.New("substation does not exist")

	// ErrNoSuchSubstation is returned when the caller owns no substation.
	ErrNoSuchSubstation = errors.New("substation does not exist or caller is not the owner")

	// ErrNotLinked is returned when a purchase is attempted while the
	// substation has no upstream plant.
	ErrNotLinked = errors.New("substation is not connected to a powerplant")
)

// Substation is a mid-tier entity buying from exactly one plant at a
// time. PowerPlantID 0 means unlinked; the link is mutable and changing
// it never rewrites past day-bucket history.
type Substation struct {
	ID             uint64
	Owner          string
	Name           string
	Area           string
	PowerPlantID   uint64
	TotalReceived  decimal.Decimal
	AvailableToBuy decimal.Decimal
}

// Ledger owns substation records, their bought/sold day books, and the
// single mutable link to a power plant. Not safe for concurrent use;
// the chain serializes access.
type Ledger struct {
	registry    *identity.Registry
	plants      *plants.Ledger
	substations map[uint64]*Substation
	bought      *daybook.Book
	sold        *daybook.Book
	nextID      uint64
}

// NewLedger creates an empty substation ledger. Purchases settle
// against plantLedger atomically.
func NewLedger(registry *identity.Registry, plantLedger *plants.Ledger) *Ledger {
	return &Ledger{
		registry:    registry,
		plants:      plantLedger,
		substations: make(map[uint64]*Substation),
		bought:      daybook.NewBook(),
		sold:        daybook.NewBook(),
	}
}

// Create registers a new substation for owner. It starts unlinked with
// the given initial availability recorded but no upstream attribution,
// so no plant needs to exist yet.
func (l *Ledger) Create(owner string, initialAvailability decimal.Decimal, name, area string) (Substation, error) {
	if initialAvailability.IsNegative() {
		return Substation{}, daybook.ErrNonPositiveAmount
	}

	id := l.nextID + 1
	if err := l.registry.Register(identity.RoleSubstation, owner, id); err != nil {
		return Substation{}, err
	}
	l.nextID = id

	sub := &Substation{
		ID:             id,
		Owner:          owner,
		Name:           name,
		Area:           area,
		PowerPlantID:   0,
		TotalReceived:  decimal.Zero,
		AvailableToBuy: initialAvailability,
	}
	l.substations[id] = sub
	return *sub, nil
}

// Connect points the caller's substation at plantID, returning the
// substation id and the previously linked plant id (0 on first connect).
// Re-linking is always permitted and does not require draining the old
// link.
func (l *Ledger) Connect(owner string, plantID uint64) (subID, prevPlantID uint64, err error) {
	if !l.plants.Exists(plantID) {
		return 0, 0, fmt.Errorf("%w: id %d", plants.ErrNotFound, plantID)
	}
	id, err := l.registry.Authorize(identity.RoleSubstation, owner)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoSuchSubstation, owner)
	}

	sub := l.substations[id]
	prev := sub.PowerPlantID
	sub.PowerPlantID = plantID
	return id, prev, nil
}

// Buy purchases amount from the caller's linked plant. The plant's sale
// and the substation's receipt commit as one step: the plant's
// availability drops by amount, the substation's received and
// availability rise by amount, and both day buckets are keyed to the
// same day index. On any error nothing is mutated.
func (l *Ledger) Buy(owner string, amount decimal.Decimal, day int64) (Substation, error) {
	if !amount.IsPositive() {
		return Substation{}, daybook.ErrNonPositiveAmount
	}
	id, err := l.registry.Authorize(identity.RoleSubstation, owner)
	if err != nil {
		return Substation{}, fmt.Errorf("%w: %s", ErrNoSuchSubstation, owner)
	}
	sub := l.substations[id]
	if sub.PowerPlantID == 0 {
		return Substation{}, fmt.Errorf("%w: substation %d", ErrNotLinked, id)
	}

	// SellTo validates before mutating, so a failure here leaves both
	// ledgers untouched.
	if err := l.plants.SellTo(sub.PowerPlantID, amount, day); err != nil {
		return Substation{}, err
	}

	sub.TotalReceived = sub.TotalReceived.Add(amount)
	sub.AvailableToBuy = sub.AvailableToBuy.Add(amount)
	l.bought.Accrue(id, day, amount)
	return *sub, nil
}

// ByID returns a snapshot of the substation, failing if id is 0 or
// unassigned.
func (l *Ledger) ByID(id uint64) (Substation, error) {
	sub, ok := l.substations[id]
	if !ok {
		return Substation{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return *sub, nil
}

// BoughtOn returns the energy bought by substation id on day.
func (l *Ledger) BoughtOn(id uint64, day int64) decimal.Decimal {
	return l.bought.Amount(id, day)
}

// SoldOn returns the energy sold by substation id on day.
func (l *Ledger) SoldOn(id uint64, day int64) decimal.Decimal {
	return l.sold.Amount(id, day)
}

// BoughtTotal sums the bought book for substation id across all days.
func (l *Ledger) BoughtTotal(id uint64) decimal.Decimal {
	return l.bought.Total(id)
}

// Count returns the number of registered substations.
func (l *Ledger) Count() int {
	return len(l.substations)
}
