package consumers

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/energychain/internal/clock"
	"github.com/terminal-bench/energychain/internal/daybook"
	"github.com/terminal-bench/energychain/internal/distributors"
	"github.com/terminal-bench/energychain/internal/identity"
)

var (
	// ErrNotFound is returned when a consumer id is 0 or unassigned.
	ErrNotFound = errors.New("consumer does not exist")

	// ErrNoSuchConsumer is returned when the caller owns no consumer.
	ErrNoSuchConsumer = errors.New("consumer does not exist or caller is not the owner")
)

// RateSource supplies the per-second consumption rate charged to
// consumers of a distributor. The rate basis is external configuration,
// not derived by the engine.
type RateSource interface {
	RateFor(distributorID uint64) decimal.Decimal
}

// StaticRate is a RateSource charging one fixed rate for every
// distributor. Used as a fallback and in tests.
type StaticRate struct {
	Rate decimal.Decimal
}

func (s StaticRate) RateFor(uint64) decimal.Decimal { return s.Rate }

// Consumer is a retail customer drawing from at most one distributor.
// CurrentCycle holds only the accrual inside the current day index and
// resets to the residual past each day rollover; TotalConsumed is the
// monotonic lifetime total.
type Consumer struct {
	ID            uint64
	Address       string
	Name          string
	HomeAddress   string
	DistributorID uint64
	TotalConsumed decimal.Decimal
	CurrentCycle  decimal.Decimal
	LastTickedAt  time.Time
}

// Settlement is the outcome of settling one consumer during a tick.
type Settlement struct {
	ConsumerID    uint64
	DistributorID uint64
	Amount        decimal.Decimal
	Drained       decimal.Decimal
	Day           int64
}

// Engine owns consumer records, their distributor links, and the batch
// consumption pass. Not safe for concurrent use; the chain serializes
// access.
type Engine struct {
	registry     *identity.Registry
	distributors *distributors.Ledger
	rates        RateSource
	consumers    map[uint64]*Consumer
	consumed     *daybook.Book
	nextID       uint64
}

// NewEngine creates an empty metering engine. Consumption draws down
// distLedger balances at the rates supplied by rates.
func NewEngine(registry *identity.Registry, distLedger *distributors.Ledger, rates RateSource) *Engine {
	return &Engine{
		registry:     registry,
		distributors: distLedger,
		rates:        rates,
		consumers:    make(map[uint64]*Consumer),
		consumed:     daybook.NewBook(),
	}
}

// Create registers a new consumer for address. It starts unlinked.
func (e *Engine) Create(address, name, homeAddress string) (Consumer, error) {
	id := e.nextID + 1
	if err := e.registry.Register(identity.RoleConsumer, address, id); err != nil {
		return Consumer{}, err
	}
	e.nextID = id

	c := &Consumer{
		ID:            id,
		Address:       address,
		Name:          name,
		HomeAddress:   homeAddress,
		TotalConsumed: decimal.Zero,
		CurrentCycle:  decimal.Zero,
	}
	e.consumers[id] = c
	return *c, nil
}

// Connect links the caller's consumer to distributorID. A first link
// starts the accrual window at now; switching links keeps the window so
// the interval between ticks is charged exactly once, against whichever
// distributor is current when the next tick settles it.
func (e *Engine) Connect(address string, distributorID uint64, now time.Time) (Consumer, error) {
	if !e.distributors.Exists(distributorID) {
		return Consumer{}, fmt.Errorf("%w: id %d", distributors.ErrNotFound, distributorID)
	}
	id, err := e.registry.Authorize(identity.RoleConsumer, address)
	if err != nil {
		return Consumer{}, fmt.Errorf("%w: %s", ErrNoSuchConsumer, address)
	}

	c := e.consumers[id]
	if c.DistributorID == 0 {
		c.LastTickedAt = now
	}
	c.DistributorID = distributorID
	return *c, nil
}

// Tick settles every linked consumer up to now. It is permissionless,
// never fails, and never double-charges: each consumer's accrual window
// advances to now, so an immediate second call charges zero.
func (e *Engine) Tick(now time.Time) []Settlement {
	ids := make([]uint64, 0, len(e.consumers))
	for id := range e.consumers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var settled []Settlement
	for _, id := range ids {
		if s, ok := e.settle(e.consumers[id], now); ok {
			settled = append(settled, s)
		}
	}
	return settled
}

// settle advances one consumer's accrual window to now, splitting the
// elapsed interval across day boundaries so each chunk lands in its own
// day bucket. The link is snapshotted here: the current distributor
// takes the whole charge, never a previous one.
func (e *Engine) settle(c *Consumer, now time.Time) (Settlement, bool) {
	if c.DistributorID == 0 || c.LastTickedAt.IsZero() {
		return Settlement{}, false
	}
	if !now.After(c.LastTickedAt) {
		return Settlement{}, false
	}

	rate := e.rates.RateFor(c.DistributorID)
	from := c.LastTickedAt
	today := clock.DayIndex(now)

	total := decimal.Zero
	currentCycle := decimal.Zero
	for day := clock.DayIndex(from); day <= today; day++ {
		secs := overlapSeconds(from, now, day)
		if secs <= 0 {
			continue
		}
		chunk := rate.Mul(decimal.NewFromInt(secs))
		if !chunk.IsPositive() {
			continue
		}
		e.consumed.Accrue(c.ID, day, chunk)
		total = total.Add(chunk)
		if day == today {
			currentCycle = chunk
		}
	}

	if clock.DayIndex(from) == today {
		c.CurrentCycle = c.CurrentCycle.Add(currentCycle)
	} else {
		// Day rollover: prior accrual belongs to the closed cycles,
		// only the residual past the last boundary carries forward.
		c.CurrentCycle = currentCycle
	}
	c.TotalConsumed = c.TotalConsumed.Add(total)
	c.LastTickedAt = now

	drained := e.distributors.Drain(c.DistributorID, total)
	return Settlement{
		ConsumerID:    c.ID,
		DistributorID: c.DistributorID,
		Amount:        total,
		Drained:       drained,
		Day:           today,
	}, total.IsPositive()
}

// overlapSeconds returns how many whole seconds of [from, to) fall into
// day bucket day.
func overlapSeconds(from, to time.Time, day int64) int64 {
	dayStart := day * clock.SecondsPerDay
	dayEnd := dayStart + clock.SecondsPerDay

	start := from.Unix()
	if start < dayStart {
		start = dayStart
	}
	end := to.Unix()
	if end > dayEnd {
		end = dayEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// ByID returns a snapshot of the consumer, failing if id is 0 or
// unassigned.
func (e *Engine) ByID(id uint64) (Consumer, error) {
	c, ok := e.consumers[id]
	if !ok {
		return Consumer{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return *c, nil
}

// ConsumedOn returns the energy consumed by consumer id on day.
func (e *Engine) ConsumedOn(id uint64, day int64) decimal.Decimal {
	return e.consumed.Amount(id, day)
}

// ConsumedTotal sums the consumed book for consumer id across all days.
func (e *Engine) ConsumedTotal(id uint64) decimal.Decimal {
	return e.consumed.Total(id)
}

// Count returns the number of registered consumers.
func (e *Engine) Count() int {
	return len(e.consumers)
}
