// Package rates resolves the per-second consumption rate charged to a
// distributor's consumers. Rates are operator configuration held in
// etcd under ratePrefix/<distributorID>, watched for updates; a
// distributor without an entry falls back to the default rate.
package rates

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const ratePrefix = "/energychain/rates/"

// Provider implements consumers.RateSource on top of etcd.
type Provider struct {
	cli         *clientv3.Client
	log         logrus.FieldLogger
	defaultRate decimal.Decimal

	mu    sync.RWMutex
	rates map[uint64]decimal.Decimal
}

// NewProvider loads all configured rates and starts watching for
// changes until ctx is cancelled.
func NewProvider(ctx context.Context, cli *clientv3.Client, defaultRate decimal.Decimal, log logrus.FieldLogger) (*Provider, error) {
	p := &Provider{
		cli:         cli,
		log:         log,
		defaultRate: defaultRate,
		rates:       make(map[uint64]decimal.Decimal),
	}

	resp, err := cli.Get(ctx, ratePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	for _, kv := range resp.Kvs {
		p.apply(string(kv.Key), string(kv.Value), false)
	}

	watch := cli.Watch(clientv3.WithRequireLeader(ctx), ratePrefix,
		clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	go p.watchLoop(watch)

	return p, nil
}

// RateFor returns the per-second rate for distributorID.
func (p *Provider) RateFor(distributorID uint64) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if rate, ok := p.rates[distributorID]; ok {
		return rate
	}
	return p.defaultRate
}

func (p *Provider) watchLoop(watch clientv3.WatchChan) {
	for resp := range watch {
		if err := resp.Err(); err != nil {
			p.log.WithError(err).Warn("rate watch error")
			continue
		}
		for _, ev := range resp.Events {
			p.apply(string(ev.Kv.Key), string(ev.Kv.Value), ev.Type == clientv3.EventTypeDelete)
		}
	}
}

func (p *Provider) apply(key, value string, deleted bool) {
	idStr := strings.TrimPrefix(key, ratePrefix)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		p.log.WithField("key", key).Warn("ignoring malformed rate key")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if deleted {
		delete(p.rates, id)
		return
	}
	rate, err := decimal.NewFromString(value)
	if err != nil || rate.IsNegative() {
		p.log.WithField("key", key).WithField("value", value).Warn("ignoring malformed rate value")
		return
	}
	p.rates[id] = rate
}

// SetRate writes the per-second rate for distributorID, for operator
// tooling.
func (p *Provider) SetRate(ctx context.Context, distributorID uint64, rate decimal.Decimal) error {
	key := ratePrefix + strconv.FormatUint(distributorID, 10)
	_, err := p.cli.Put(ctx, key, rate.String())
	return err
}
