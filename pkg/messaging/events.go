package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Event subjects published by the chain. Observers (audit archiver,
// telemetry, alerting, websocket stream) subscribe to "energy.>".
const (
	EventTypePlantCreated     = "energy.plant.created"
	EventTypePlantEnergyAdded = "energy.plant.energy_added"

	EventTypeSubstationCreated   = "energy.substation.created"
	EventTypeSubstationConnected = "energy.substation.connected"
	EventTypeSubstationPurchase  = "energy.substation.purchase"

	EventTypeDistributorCreated = "energy.distributor.created"

	EventTypeConsumerCreated   = "energy.consumer.created"
	EventTypeConsumerConnected = "energy.consumer.connected"

	EventTypeMeteringSettled = "energy.metering.settled"

	EventTypeAvailabilityAlert = "energy.alert.low_availability"
)

// Envelope wraps every published payload with an id and timestamp so
// downstream consumers can de-duplicate and order.
type Envelope struct {
	ID        uuid.UUID   `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PlantCreatedEvent carries (plantID, owner), mirroring the creation
// record emitted for every new plant.
type PlantCreatedEvent struct {
	PlantID uint64 `json:"plant_id"`
	Owner   string `json:"owner"`
}

// PlantEnergyAddedEvent carries (plantID, amount, day).
type PlantEnergyAddedEvent struct {
	PlantID uint64 `json:"plant_id"`
	Amount  string `json:"amount"`
	Day     int64  `json:"day"`
}

// SubstationCreatedEvent carries (substationID, owner, initial
// availability).
type SubstationCreatedEvent struct {
	SubstationID        uint64 `json:"substation_id"`
	Owner               string `json:"owner"`
	InitialAvailability string `json:"initial_availability"`
}

// SubstationConnectedEvent carries (substationID, plantID, previous
// plantID, 0 on first connect).
type SubstationConnectedEvent struct {
	SubstationID uint64 `json:"substation_id"`
	PlantID      uint64 `json:"plant_id"`
	PrevPlantID  uint64 `json:"prev_plant_id"`
}

// SubstationPurchaseEvent carries (substationID, amount, day) for the
// atomic plant-to-substation transfer.
type SubstationPurchaseEvent struct {
	SubstationID uint64 `json:"substation_id"`
	PlantID      uint64 `json:"plant_id"`
	Amount       string `json:"amount"`
	Day          int64  `json:"day"`
}

// DistributorCreatedEvent carries (distributorID, owner).
type DistributorCreatedEvent struct {
	DistributorID uint64 `json:"distributor_id"`
	Owner         string `json:"owner"`
}

// ConsumerCreatedEvent carries (consumerID, address).
type ConsumerCreatedEvent struct {
	ConsumerID uint64 `json:"consumer_id"`
	Address    string `json:"address"`
}

// ConsumerConnectedEvent carries (consumerID, distributorID).
type ConsumerConnectedEvent struct {
	ConsumerID    uint64 `json:"consumer_id"`
	DistributorID uint64 `json:"distributor_id"`
}

// MeteringSettledEvent summarizes one tick: per-consumer settlements
// plus the day index the pass landed on.
type MeteringSettledEvent struct {
	Settled []ConsumerSettlement `json:"settled"`
	Day     int64                `json:"day"`
}

// ConsumerSettlement is one consumer's share of a metering pass.
type ConsumerSettlement struct {
	ConsumerID    uint64 `json:"consumer_id"`
	DistributorID uint64 `json:"distributor_id"`
	Amount        string `json:"amount"`
}

// AvailabilityAlertEvent is raised when a plant's available energy falls
// below the configured threshold.
type AvailabilityAlertEvent struct {
	PlantID   uint64 `json:"plant_id"`
	Available string `json:"available"`
	Threshold string `json:"threshold"`
}
