// Package alerts raises low-availability alerts: when a purchase drops
// a plant's available energy below the configured threshold, an alert
// event goes back onto the bus for operators to act on.
package alerts

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/energychain/pkg/messaging"
)

// PlantReader looks up the current plant availability, satisfied by the
// chain.
type PlantReader interface {
	PlantAvailability(id uint64) (decimal.Decimal, error)
}

// Publisher re-publishes alert events, satisfied by *messaging.Client.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Subscriber registers event handlers, satisfied by *messaging.Client.
type Subscriber interface {
	Subscribe(subject string, handler func(msg *nats.Msg)) error
}

// Watcher checks plant availability after every purchase. One alert per
// threshold crossing: a plant re-arms once it is refilled above the
// threshold.
type Watcher struct {
	plants    PlantReader
	pub       Publisher
	threshold decimal.Decimal
	log       logrus.FieldLogger

	mu      sync.Mutex
	alerted map[uint64]bool
}

// NewWatcher creates a watcher alerting below threshold.
func NewWatcher(plants PlantReader, pub Publisher, threshold decimal.Decimal, log logrus.FieldLogger) *Watcher {
	return &Watcher{
		plants:    plants,
		pub:       pub,
		threshold: threshold,
		log:       log,
		alerted:   make(map[uint64]bool),
	}
}

// Start subscribes to the events that move plant availability.
func (w *Watcher) Start(ctx context.Context, sub Subscriber) error {
	if err := sub.Subscribe(messaging.EventTypeSubstationPurchase, func(msg *nats.Msg) {
		var data struct {
			Data messaging.SubstationPurchaseEvent `json:"data"`
		}
		if json.Unmarshal(msg.Data, &data) != nil {
			return
		}
		w.Check(ctx, data.Data.PlantID)
	}); err != nil {
		return err
	}

	return sub.Subscribe(messaging.EventTypePlantEnergyAdded, func(msg *nats.Msg) {
		var data struct {
			Data messaging.PlantEnergyAddedEvent `json:"data"`
		}
		if json.Unmarshal(msg.Data, &data) != nil {
			return
		}
		w.Check(ctx, data.Data.PlantID)
	})
}

// Check evaluates plant id against the threshold, alerting on a fresh
// crossing and re-arming on recovery.
func (w *Watcher) Check(ctx context.Context, plantID uint64) {
	available, err := w.plants.PlantAvailability(plantID)
	if err != nil {
		w.log.WithError(err).WithField("plant_id", plantID).Warn("availability lookup failed")
		return
	}

	w.mu.Lock()
	low := available.LessThan(w.threshold)
	fresh := low && !w.alerted[plantID]
	w.alerted[plantID] = low
	w.mu.Unlock()

	if !fresh {
		return
	}

	event := messaging.Envelope{
		ID:        uuid.New(),
		Type:      messaging.EventTypeAvailabilityAlert,
		Timestamp: time.Now(),
		Data: messaging.AvailabilityAlertEvent{
			PlantID:   plantID,
			Available: available.String(),
			Threshold: w.threshold.String(),
		},
	}
	if err := w.pub.Publish(ctx, messaging.EventTypeAvailabilityAlert, event); err != nil {
		w.log.WithError(err).Warn("alert publish failed")
	}
	w.log.WithField("plant_id", plantID).WithField("available", available.String()).Warn("plant availability below threshold")
}
