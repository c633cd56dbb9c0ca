package chain

import (
	"github.com/shopspring/decimal"
	"github.com/terminal-bench/energychain/internal/consumers"
	"github.com/terminal-bench/energychain/internal/distributors"
	"github.com/terminal-bench/energychain/internal/plants"
	"github.com/terminal-bench/energychain/internal/substations"
)

// PowerPlantByID returns a plant snapshot; id 0 or unassigned fails.
func (c *Chain) PowerPlantByID(id uint64) (plants.PowerPlant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plants.ByID(id)
}

// SubstationByID returns a substation snapshot.
func (c *Chain) SubstationByID(id uint64) (substations.Substation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs.ByID(id)
}

// DistributorByID returns a distributor snapshot.
func (c *Chain) DistributorByID(id uint64) (distributors.Distributor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dists.ByID(id)
}

// ConsumerByID returns a consumer snapshot.
func (c *Chain) ConsumerByID(id uint64) (consumers.Consumer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meters.ByID(id)
}

// PlantAvailability returns plant id's current available energy.
func (c *Chain) PlantAvailability(id uint64) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	plant, err := c.plants.ByID(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return plant.AvailableToBuy, nil
}

// PlantEnergyProducedByDay returns plant id's produced bucket for day;
// zero if absent.
func (c *Chain) PlantEnergyProducedByDay(id uint64, day int64) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plants.ProducedOn(id, day)
}

// PlantEnergySoldByDay returns plant id's sold bucket for day.
func (c *Chain) PlantEnergySoldByDay(id uint64, day int64) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plants.SoldOn(id, day)
}

// SubstationEnergyBoughtByDay returns substation id's bought bucket for
// day.
func (c *Chain) SubstationEnergyBoughtByDay(id uint64, day int64) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs.BoughtOn(id, day)
}

// SubstationEnergySoldByDay returns substation id's sold bucket for day.
func (c *Chain) SubstationEnergySoldByDay(id uint64, day int64) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs.SoldOn(id, day)
}

// ConsumerEnergyConsumedByDay returns consumer id's consumed bucket for
// day.
func (c *Chain) ConsumerEnergyConsumedByDay(id uint64, day int64) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meters.ConsumedOn(id, day)
}

// ConsumersOfDistributor returns the ids of consumers currently drawing
// from distributor id, ascending.
func (c *Chain) ConsumersOfDistributor(id uint64) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph.ConsumersOf(id)
}

// SubstationsOfPlant returns the ids of substations currently buying
// from plant id, ascending.
func (c *Chain) SubstationsOfPlant(id uint64) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph.SubstationsOf(id)
}
