// Package telemetry mirrors day-bucket accruals into InfluxDB so
// operators can chart production, purchases, and consumption without
// touching the ledger.
package telemetry

import (
	"encoding/json"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/terminal-bench/energychain/pkg/messaging"
)

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Subscriber registers event handlers, satisfied by *messaging.Client.
type Subscriber interface {
	Subscribe(subject string, handler func(msg *nats.Msg)) error
}

// Recorder converts chain events into time-series points.
type Recorder struct {
	client influxdb2.Client
	writer api.WriteAPI
	log    logrus.FieldLogger
}

// NewRecorder connects to InfluxDB with the given configuration.
func NewRecorder(cfg Config, log logrus.FieldLogger) *Recorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Recorder{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
		log:    log,
	}
}

// Start subscribes to the accrual-bearing events.
func (r *Recorder) Start(sub Subscriber) error {
	for _, subject := range []string{
		messaging.EventTypePlantEnergyAdded,
		messaging.EventTypeSubstationPurchase,
		messaging.EventTypeMeteringSettled,
	} {
		if err := sub.Subscribe(subject, r.handle); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes buffered points and shuts the client down.
func (r *Recorder) Close() {
	r.writer.Flush()
	r.client.Close()
}

func (r *Recorder) handle(msg *nats.Msg) {
	var env messaging.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.log.WithError(err).Warn("discarding malformed event")
		return
	}

	switch env.Type {
	case messaging.EventTypePlantEnergyAdded:
		var data struct {
			Data messaging.PlantEnergyAddedEvent `json:"data"`
		}
		if json.Unmarshal(msg.Data, &data) != nil {
			return
		}
		r.write("energy_produced", "powerplant", data.Data.PlantID, data.Data.Amount, data.Data.Day, env.Timestamp)
	case messaging.EventTypeSubstationPurchase:
		var data struct {
			Data messaging.SubstationPurchaseEvent `json:"data"`
		}
		if json.Unmarshal(msg.Data, &data) != nil {
			return
		}
		r.write("energy_sold", "powerplant", data.Data.PlantID, data.Data.Amount, data.Data.Day, env.Timestamp)
		r.write("energy_bought", "substation", data.Data.SubstationID, data.Data.Amount, data.Data.Day, env.Timestamp)
	case messaging.EventTypeMeteringSettled:
		var data struct {
			Data messaging.MeteringSettledEvent `json:"data"`
		}
		if json.Unmarshal(msg.Data, &data) != nil {
			return
		}
		for _, s := range data.Data.Settled {
			r.write("energy_consumed", "consumer", s.ConsumerID, s.Amount, data.Data.Day, env.Timestamp)
		}
	}
}

func (r *Recorder) write(measurement, role string, entityID uint64, amount string, day int64, at time.Time) {
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		r.log.WithField("amount", amount).Warn("unparseable amount in event")
		return
	}

	point := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("role", role).
		AddTag("entity_id", strconv.FormatUint(entityID, 10)).
		AddField("amount", value).
		AddField("day", day).
		SetTime(at)
	r.writer.WritePoint(point)
}
