// Package snapshots is the query-side cache: entity snapshots served by
// the gateway are kept in redis and invalidated when the chain publishes
// a mutation event for the entity.
package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/energychain/pkg/messaging"
)

// Cache is a read-through redis cache keyed by role and entity id.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log logrus.FieldLogger
}

// NewCache wraps rdb. ttl of zero means entries live until invalidated.
func NewCache(rdb *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, log: log}
}

// Key builds the cache key for (role, id).
func Key(role string, id uint64) string {
	return fmt.Sprintf("snapshot:%s:%d", role, id)
}

// GetJSON loads the snapshot at key into dest, falling through to
// loader on a miss and caching its result. Cache failures degrade to
// the loader; they never fail a read.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}, loader func() (interface{}, error)) error {
	if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if json.Unmarshal([]byte(cached), dest) == nil {
			return nil
		}
	} else if err != redis.Nil {
		c.log.WithError(err).WithField("key", key).Debug("cache read failed")
	}

	value, err := loader()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Debug("cache write failed")
	}
	return json.Unmarshal(payload, dest)
}

// Invalidate drops the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Debug("cache invalidation failed")
	}
}

// Subscriber registers event handlers, satisfied by *messaging.Client.
type Subscriber interface {
	Subscribe(subject string, handler func(msg *nats.Msg)) error
}

// StartInvalidator subscribes to the chain's event stream and drops the
// snapshots touched by each mutation.
func (c *Cache) StartInvalidator(ctx context.Context, sub Subscriber) error {
	return sub.Subscribe("energy.>", func(msg *nats.Msg) {
		var env messaging.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			c.log.WithError(err).Warn("malformed event on invalidation stream")
			return
		}
		c.Invalidate(ctx, keysFor(env, msg.Data)...)
	})
}

// keysFor maps one event to the snapshot keys it staled.
func keysFor(env messaging.Envelope, raw []byte) []string {
	switch env.Type {
	case messaging.EventTypePlantCreated, messaging.EventTypePlantEnergyAdded:
		var data struct {
			Data messaging.PlantEnergyAddedEvent `json:"data"`
		}
		json.Unmarshal(raw, &data)
		return []string{Key("powerplant", data.Data.PlantID)}
	case messaging.EventTypeSubstationCreated, messaging.EventTypeSubstationConnected:
		var data struct {
			Data messaging.SubstationConnectedEvent `json:"data"`
		}
		json.Unmarshal(raw, &data)
		return []string{Key("substation", data.Data.SubstationID)}
	case messaging.EventTypeSubstationPurchase:
		var data struct {
			Data messaging.SubstationPurchaseEvent `json:"data"`
		}
		json.Unmarshal(raw, &data)
		return []string{
			Key("substation", data.Data.SubstationID),
			Key("powerplant", data.Data.PlantID),
		}
	case messaging.EventTypeDistributorCreated:
		var data struct {
			Data messaging.DistributorCreatedEvent `json:"data"`
		}
		json.Unmarshal(raw, &data)
		return []string{Key("distributor", data.Data.DistributorID)}
	case messaging.EventTypeConsumerCreated, messaging.EventTypeConsumerConnected:
		var data struct {
			Data messaging.ConsumerConnectedEvent `json:"data"`
		}
		json.Unmarshal(raw, &data)
		return []string{Key("consumer", data.Data.ConsumerID)}
	case messaging.EventTypeMeteringSettled:
		var data struct {
			Data messaging.MeteringSettledEvent `json:"data"`
		}
		json.Unmarshal(raw, &data)
		keys := make([]string, 0, 2*len(data.Data.Settled))
		for _, s := range data.Data.Settled {
			keys = append(keys,
				Key("consumer", s.ConsumerID),
				Key("distributor", s.DistributorID))
		}
		return keys
	default:
		return nil
	}
}
