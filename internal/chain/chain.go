// Package chain ties the registry, ledgers, metering engine, and
// relationship graph together behind a single lock. Every entry point
// runs as one atomic, totally-ordered step: all validation happens
// before any mutation, so a rejected operation leaves zero side effects.
package chain

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/energychain/internal/clock"
	"github.com/terminal-bench/energychain/internal/consumers"
	"github.com/terminal-bench/energychain/internal/distributors"
	"github.com/terminal-bench/energychain/internal/identity"
	"github.com/terminal-bench/energychain/internal/plants"
	"github.com/terminal-bench/energychain/internal/substations"
	"github.com/terminal-bench/energychain/internal/topology"
	"github.com/terminal-bench/energychain/pkg/messaging"
)

// Publisher is the event sink for committed operations. Satisfied by
// *messaging.Client; tests substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Config holds the chain's collaborators. Clock and Rates are required;
// Publisher and Logger default to no-op and the standard logger.
type Config struct {
	Clock     clock.Clock
	Rates     consumers.RateSource
	Publisher Publisher
	Logger    logrus.FieldLogger
}

// Chain is the energy supply chain ledger.
type Chain struct {
	mu sync.RWMutex

	clk      clock.Clock
	registry *identity.Registry
	plants   *plants.Ledger
	subs     *substations.Ledger
	dists    *distributors.Ledger
	meters   *consumers.Engine
	graph    *topology.Graph

	pub Publisher
	log logrus.FieldLogger
}

// New bootstraps an empty supply chain: zero entities of every kind.
func New(cfg Config) *Chain {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Rates == nil {
		cfg.Rates = consumers.StaticRate{Rate: decimal.Zero}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	registry := identity.NewRegistry()
	plantLedger := plants.NewLedger(registry)
	distLedger := distributors.NewLedger(registry)

	return &Chain{
		clk:      cfg.Clock,
		registry: registry,
		plants:   plantLedger,
		subs:     substations.NewLedger(registry, plantLedger),
		dists:    distLedger,
		meters:   consumers.NewEngine(registry, distLedger, cfg.Rates),
		graph:    topology.NewGraph(),
		pub:      cfg.Publisher,
		log:      cfg.Logger,
	}
}

// AddPowerPlant creates a plant for the caller with initialEnergy
// produced and available. One plant per caller identity.
func (c *Chain) AddPowerPlant(ctx context.Context, caller, name, area string, initialEnergy decimal.Decimal) (plants.PowerPlant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := clock.DayIndex(c.clk.Now())
	plant, err := c.plants.Create(caller, name, area, initialEnergy, day)
	if err != nil {
		return plants.PowerPlant{}, err
	}

	c.publish(ctx, messaging.EventTypePlantCreated, messaging.PlantCreatedEvent{
		PlantID: plant.ID,
		Owner:   plant.Owner,
	})
	return plant, nil
}

// AddEnergyAvailableToBuy raises the caller's plant production and
// availability by amount, accrued into today's produced bucket.
func (c *Chain) AddEnergyAvailableToBuy(ctx context.Context, caller string, amount decimal.Decimal) (plants.PowerPlant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := clock.DayIndex(c.clk.Now())
	plant, err := c.plants.AddEnergy(caller, amount, day)
	if err != nil {
		return plants.PowerPlant{}, err
	}

	c.publish(ctx, messaging.EventTypePlantEnergyAdded, messaging.PlantEnergyAddedEvent{
		PlantID: plant.ID,
		Amount:  amount.String(),
		Day:     day,
	})
	return plant, nil
}

// AddSubstation creates an unlinked substation for the caller.
func (c *Chain) AddSubstation(ctx context.Context, caller string, initialAvailability decimal.Decimal, name, area string) (substations.Substation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.subs.Create(caller, initialAvailability, name, area)
	if err != nil {
		return substations.Substation{}, err
	}

	c.publish(ctx, messaging.EventTypeSubstationCreated, messaging.SubstationCreatedEvent{
		SubstationID:        sub.ID,
		Owner:               sub.Owner,
		InitialAvailability: sub.AvailableToBuy.String(),
	})
	return sub, nil
}

// ConnectSubstationToPowerplant points the caller's substation at
// plantID. Re-linking never rewrites the previous plant's history.
func (c *Chain) ConnectSubstationToPowerplant(ctx context.Context, caller string, plantID uint64) (substations.Substation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subID, prevPlantID, err := c.subs.Connect(caller, plantID)
	if err != nil {
		return substations.Substation{}, err
	}
	c.graph.LinkSubstation(subID, plantID)

	c.publish(ctx, messaging.EventTypeSubstationConnected, messaging.SubstationConnectedEvent{
		SubstationID: subID,
		PlantID:      plantID,
		PrevPlantID:  prevPlantID,
	})
	sub, _ := c.subs.ByID(subID)
	return sub, nil
}

// BuyEnergyFromPowerPlant transfers amount from the caller's linked
// plant to the caller's substation as a single atomic step.
func (c *Chain) BuyEnergyFromPowerPlant(ctx context.Context, caller string, amount decimal.Decimal) (substations.Substation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := clock.DayIndex(c.clk.Now())
	sub, err := c.subs.Buy(caller, amount, day)
	if err != nil {
		return substations.Substation{}, err
	}

	c.publish(ctx, messaging.EventTypeSubstationPurchase, messaging.SubstationPurchaseEvent{
		SubstationID: sub.ID,
		PlantID:      sub.PowerPlantID,
		Amount:       amount.String(),
		Day:          day,
	})
	return sub, nil
}

// AddDistributor creates a distributor for the caller with initialEnergy
// available.
func (c *Chain) AddDistributor(ctx context.Context, caller, name, area string, initialEnergy decimal.Decimal) (distributors.Distributor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dist, err := c.dists.Create(caller, name, area, initialEnergy)
	if err != nil {
		return distributors.Distributor{}, err
	}

	c.publish(ctx, messaging.EventTypeDistributorCreated, messaging.DistributorCreatedEvent{
		DistributorID: dist.ID,
		Owner:         dist.Owner,
	})
	return dist, nil
}

// AddConsumer creates an unlinked consumer for the caller.
func (c *Chain) AddConsumer(ctx context.Context, caller, name, homeAddress string) (consumers.Consumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	consumer, err := c.meters.Create(caller, name, homeAddress)
	if err != nil {
		return consumers.Consumer{}, err
	}

	c.publish(ctx, messaging.EventTypeConsumerCreated, messaging.ConsumerCreatedEvent{
		ConsumerID: consumer.ID,
		Address:    consumer.Address,
	})
	return consumer, nil
}

// ConnectConsumerToDistributor links the caller's consumer to
// distributorID and starts its accrual window.
func (c *Chain) ConnectConsumerToDistributor(ctx context.Context, caller string, distributorID uint64) (consumers.Consumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	consumer, err := c.meters.Connect(caller, distributorID, c.clk.Now())
	if err != nil {
		return consumers.Consumer{}, err
	}
	c.graph.LinkConsumer(consumer.ID, distributorID)

	c.publish(ctx, messaging.EventTypeConsumerConnected, messaging.ConsumerConnectedEvent{
		ConsumerID:    consumer.ID,
		DistributorID: distributorID,
	})
	return consumer, nil
}

// Tick settles accrued consumption for every linked consumer up to now.
// Permissionless; anyone may drive it, at any cadence.
func (c *Chain) Tick(ctx context.Context) []consumers.Settlement {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	settled := c.meters.Tick(now)
	if len(settled) == 0 {
		return settled
	}

	event := messaging.MeteringSettledEvent{Day: clock.DayIndex(now)}
	for _, s := range settled {
		event.Settled = append(event.Settled, messaging.ConsumerSettlement{
			ConsumerID:    s.ConsumerID,
			DistributorID: s.DistributorID,
			Amount:        s.Amount.String(),
		})
	}
	c.publish(ctx, messaging.EventTypeMeteringSettled, event)
	return settled
}

func (c *Chain) publish(ctx context.Context, subject string, data interface{}) {
	if c.pub == nil {
		return
	}
	env := messaging.Envelope{
		ID:        uuid.New(),
		Type:      subject,
		Timestamp: c.clk.Now(),
		Data:      data,
	}
	if err := c.pub.Publish(ctx, subject, env); err != nil {
		c.log.WithError(err).WithField("subject", subject).Warn("event publish failed")
	}
}
