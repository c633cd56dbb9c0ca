package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energychain/pkg/messaging"
)

type stubPlants struct {
	available map[uint64]decimal.Decimal
}

func (s stubPlants) PlantAvailability(id uint64) (decimal.Decimal, error) {
	available, ok := s.available[id]
	if !ok {
		return decimal.Decimal{}, errors.New("no such plant")
	}
	return available, nil
}

type stubPublisher struct {
	published []messaging.AvailabilityAlertEvent
}

func (s *stubPublisher) Publish(_ context.Context, _ string, data interface{}) error {
	env := data.(messaging.Envelope)
	s.published = append(s.published, env.Data.(messaging.AvailabilityAlertEvent))
	return nil
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	log := logrus.New()

	t.Run("should alert when availability drops below the threshold", func(t *testing.T) {
		plants := stubPlants{available: map[uint64]decimal.Decimal{1: decimal.NewFromInt(50)}}
		pub := &stubPublisher{}
		watcher := NewWatcher(plants, pub, decimal.NewFromInt(100), log)

		watcher.Check(ctx, 1)

		require.Len(t, pub.published, 1)
		assert.Equal(t, uint64(1), pub.published[0].PlantID)
		assert.Equal(t, "50", pub.published[0].Available)
		assert.Equal(t, "100", pub.published[0].Threshold)
	})

	t.Run("should not alert at or above the threshold", func(t *testing.T) {
		plants := stubPlants{available: map[uint64]decimal.Decimal{1: decimal.NewFromInt(100)}}
		pub := &stubPublisher{}
		watcher := NewWatcher(plants, pub, decimal.NewFromInt(100), log)

		watcher.Check(ctx, 1)
		assert.Empty(t, pub.published)
	})

	t.Run("should alert once per crossing", func(t *testing.T) {
		plants := stubPlants{available: map[uint64]decimal.Decimal{1: decimal.NewFromInt(50)}}
		pub := &stubPublisher{}
		watcher := NewWatcher(plants, pub, decimal.NewFromInt(100), log)

		watcher.Check(ctx, 1)
		watcher.Check(ctx, 1)

		assert.Len(t, pub.published, 1)
	})

	t.Run("should re-arm after recovery", func(t *testing.T) {
		plants := stubPlants{available: map[uint64]decimal.Decimal{1: decimal.NewFromInt(50)}}
		pub := &stubPublisher{}
		watcher := NewWatcher(plants, pub, decimal.NewFromInt(100), log)

		watcher.Check(ctx, 1)
		plants.available[1] = decimal.NewFromInt(500)
		watcher.Check(ctx, 1)
		plants.available[1] = decimal.NewFromInt(10)
		watcher.Check(ctx, 1)

		assert.Len(t, pub.published, 2)
	})

	t.Run("should ignore lookup failures", func(t *testing.T) {
		pub := &stubPublisher{}
		watcher := NewWatcher(stubPlants{}, pub, decimal.NewFromInt(100), log)

		watcher.Check(ctx, 9)
		assert.Empty(t, pub.published)
	})
}
