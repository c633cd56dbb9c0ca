package daybook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookAccrue(t *testing.T) {
	t.Run("should merge same-day accruals into one bucket", func(t *testing.T) {
		book := NewBook()

		require.NoError(t, book.Accrue(1, 19600, decimal.NewFromInt(50)))
		require.NoError(t, book.Accrue(1, 19600, decimal.NewFromInt(70)))

		assert.True(t, book.Amount(1, 19600).Equal(decimal.NewFromInt(120)))
		assert.Equal(t, 1, book.Days(1))
	})

	t.Run("should keep different days in separate buckets", func(t *testing.T) {
		book := NewBook()

		require.NoError(t, book.Accrue(1, 19600, decimal.NewFromInt(50)))
		require.NoError(t, book.Accrue(1, 19601, decimal.NewFromInt(70)))

		assert.True(t, book.Amount(1, 19600).Equal(decimal.NewFromInt(50)))
		assert.True(t, book.Amount(1, 19601).Equal(decimal.NewFromInt(70)))
		assert.Equal(t, 2, book.Days(1))
	})

	t.Run("should keep entities independent", func(t *testing.T) {
		book := NewBook()

		require.NoError(t, book.Accrue(1, 19600, decimal.NewFromInt(50)))
		require.NoError(t, book.Accrue(2, 19600, decimal.NewFromInt(9)))

		assert.True(t, book.Amount(1, 19600).Equal(decimal.NewFromInt(50)))
		assert.True(t, book.Amount(2, 19600).Equal(decimal.NewFromInt(9)))
	})

	t.Run("should reject zero amount", func(t *testing.T) {
		book := NewBook()

		err := book.Accrue(1, 19600, decimal.Zero)
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
		assert.Equal(t, 0, book.Days(1))
	})

	t.Run("should reject negative amount", func(t *testing.T) {
		book := NewBook()

		err := book.Accrue(1, 19600, decimal.NewFromInt(-5))
		assert.ErrorIs(t, err, ErrNonPositiveAmount)
		assert.True(t, book.Amount(1, 19600).IsZero())
	})
}

func TestBookAmount(t *testing.T) {
	t.Run("should return zero for untouched bucket", func(t *testing.T) {
		book := NewBook()

		assert.True(t, book.Amount(42, 19600).IsZero())
	})
}

func TestBookTotal(t *testing.T) {
	t.Run("should sum all buckets for an entity", func(t *testing.T) {
		book := NewBook()

		require.NoError(t, book.Accrue(1, 19600, decimal.NewFromInt(50)))
		require.NoError(t, book.Accrue(1, 19601, decimal.NewFromInt(70)))
		require.NoError(t, book.Accrue(1, 19700, decimal.RequireFromString("0.5")))

		assert.True(t, book.Total(1).Equal(decimal.RequireFromString("120.5")))
	})

	t.Run("should return zero for unknown entity", func(t *testing.T) {
		book := NewBook()

		assert.True(t, book.Total(99).IsZero())
	})
}
