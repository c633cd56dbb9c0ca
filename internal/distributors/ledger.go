package distributors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/energychain/internal/daybook"
	"github.com/terminal-bench/energychain/internal/identity"
)

// ErrNotFound is returned when a distributor id is 0 or unassigned.
var ErrNotFound = errors.New("distributor does not exist")

// Distributor is the retail-side entity consumers draw from.
type Distributor struct {
	ID              uint64
	Owner           string
	Name            string
	Area            string
	EnergyAvailable decimal.Decimal
}

// Ledger owns distributor records. Not safe for concurrent use; the
// chain serializes access.
type Ledger struct {
	registry     *identity.Registry
	distributors map[uint64]*Distributor
	nextID       uint64
}

// NewLedger creates an empty distributor ledger backed by registry.
func NewLedger(registry *identity.Registry) *Ledger {
	return &Ledger{
		registry:     registry,
		distributors: make(map[uint64]*Distributor),
	}
}

// Create registers a new distributor for owner with initialEnergy
// available. One distributor per owner.
func (l *Ledger) Create(owner, name, area string, initialEnergy decimal.Decimal) (Distributor, error) {
	if initialEnergy.IsNegative() {
		return Distributor{}, daybook.ErrNonPositiveAmount
	}

	id := l.nextID + 1
	if err := l.registry.Register(identity.RoleDistributor, owner, id); err != nil {
		return Distributor{}, err
	}
	l.nextID = id

	dist := &Distributor{
		ID:              id,
		Owner:           owner,
		Name:            name,
		Area:            area,
		EnergyAvailable: initialEnergy,
	}
	l.distributors[id] = dist
	return *dist, nil
}

// Drain deducts consumed energy from distributor id, clamping at zero.
// The metering pass must never fail, so over-draw exhausts the balance
// instead of erroring; the returned amount is what was actually drained.
func (l *Ledger) Drain(id uint64, amount decimal.Decimal) decimal.Decimal {
	dist, ok := l.distributors[id]
	if !ok || !amount.IsPositive() {
		return decimal.Zero
	}
	drained := amount
	if drained.GreaterThan(dist.EnergyAvailable) {
		drained = dist.EnergyAvailable
	}
	dist.EnergyAvailable = dist.EnergyAvailable.Sub(drained)
	return drained
}

// ByID returns a snapshot of the distributor, failing if id is 0 or
// unassigned.
func (l *Ledger) ByID(id uint64) (Distributor, error) {
	dist, ok := l.distributors[id]
	if !ok {
		return Distributor{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return *dist, nil
}

// Exists reports whether id is an assigned distributor id.
func (l *Ledger) Exists(id uint64) bool {
	_, ok := l.distributors[id]
	return ok
}

// Count returns the number of registered distributors.
func (l *Ledger) Count() int {
	return len(l.distributors)
}
