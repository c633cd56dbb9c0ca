package plants

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energychain/internal/daybook"
	"github.com/terminal-bench/energychain/internal/identity"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreate(t *testing.T) {
	day := int64(19700)

	t.Run("should assign dense ids starting at one", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())

		first, err := ledger.Create("alice", "North Plant", "north", d("100"), day)
		require.NoError(t, err)
		second, err := ledger.Create("bob", "South Plant", "south", d("200"), day)
		require.NoError(t, err)

		assert.Equal(t, uint64(1), first.ID)
		assert.Equal(t, uint64(2), second.ID)
		assert.Equal(t, 2, ledger.Count())
	})

	t.Run("should not burn an id on a rejected duplicate", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())
		_, err := ledger.Create("alice", "North Plant", "north", d("100"), day)
		require.NoError(t, err)

		_, err = ledger.Create("alice", "Second Plant", "south", d("100"), day)
		require.ErrorIs(t, err, identity.ErrAlreadyRegistered)

		next, err := ledger.Create("bob", "South Plant", "south", d("200"), day)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), next.ID)
	})

	t.Run("should keep availability equal to produced minus sold", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())
		plant, err := ledger.Create("alice", "North Plant", "north", d("100"), day)
		require.NoError(t, err)

		require.NoError(t, ledger.SellTo(plant.ID, d("40"), day))
		got, err := ledger.ByID(plant.ID)
		require.NoError(t, err)

		assert.True(t, got.AvailableToBuy.Equal(got.TotalProduced.Sub(got.TotalSold)))
	})
}

func TestSellTo(t *testing.T) {
	day := int64(19700)

	t.Run("should record the sale in the day bucket", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())
		plant, err := ledger.Create("alice", "North Plant", "north", d("100"), day)
		require.NoError(t, err)

		require.NoError(t, ledger.SellTo(plant.ID, d("30"), day))
		require.NoError(t, ledger.SellTo(plant.ID, d("20"), day))

		assert.True(t, ledger.SoldOn(plant.ID, day).Equal(d("50")))
		assert.True(t, ledger.SoldTotal(plant.ID).Equal(d("50")))
	})

	t.Run("should reject oversell without mutating", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())
		plant, err := ledger.Create("alice", "North Plant", "north", d("100"), day)
		require.NoError(t, err)

		err = ledger.SellTo(plant.ID, d("101"), day)
		require.ErrorIs(t, err, ErrInsufficientAvailability)

		got, err := ledger.ByID(plant.ID)
		require.NoError(t, err)
		assert.True(t, got.AvailableToBuy.Equal(d("100")))
		assert.True(t, got.TotalSold.IsZero())
		assert.True(t, ledger.SoldOn(plant.ID, day).IsZero())
	})

	t.Run("should reject non-positive amounts", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())
		plant, err := ledger.Create("alice", "North Plant", "north", d("100"), day)
		require.NoError(t, err)

		assert.ErrorIs(t, ledger.SellTo(plant.ID, decimal.Zero, day), daybook.ErrNonPositiveAmount)
		assert.ErrorIs(t, ledger.SellTo(plant.ID, d("-1"), day), daybook.ErrNonPositiveAmount)
	})

	t.Run("should reject unknown plants", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())

		assert.ErrorIs(t, ledger.SellTo(9, d("1"), day), ErrNotFound)
	})
}

func TestByID(t *testing.T) {
	t.Run("should fail for id zero", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())

		_, err := ledger.ByID(0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should return a snapshot detached from the ledger", func(t *testing.T) {
		ledger := NewLedger(identity.NewRegistry())
		plant, err := ledger.Create("alice", "North Plant", "north", d("100"), 19700)
		require.NoError(t, err)

		snapshot, err := ledger.ByID(plant.ID)
		require.NoError(t, err)
		snapshot.TotalProduced = d("999")

		got, err := ledger.ByID(plant.ID)
		require.NoError(t, err)
		assert.True(t, got.TotalProduced.Equal(d("100")))
	})
}
