package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkSubstation(t *testing.T) {
	t.Run("should record the link both ways", func(t *testing.T) {
		graph := NewGraph()

		graph.LinkSubstation(1, 10)

		assert.Equal(t, uint64(10), graph.SupplierOfSubstation(1))
		assert.Equal(t, []uint64{1}, graph.SubstationsOf(10))
	})

	t.Run("should drop the previous link on relink", func(t *testing.T) {
		graph := NewGraph()
		graph.LinkSubstation(1, 10)

		graph.LinkSubstation(1, 20)

		assert.Equal(t, uint64(20), graph.SupplierOfSubstation(1))
		assert.Empty(t, graph.SubstationsOf(10))
		assert.Equal(t, []uint64{1}, graph.SubstationsOf(20))
	})
}

func TestLinkConsumer(t *testing.T) {
	t.Run("should record the link both ways", func(t *testing.T) {
		graph := NewGraph()

		graph.LinkConsumer(3, 5)

		assert.Equal(t, uint64(5), graph.SupplierOfConsumer(3))
		assert.Equal(t, []uint64{3}, graph.ConsumersOf(5))
	})

	t.Run("should return consumers in ascending id order", func(t *testing.T) {
		graph := NewGraph()
		graph.LinkConsumer(9, 5)
		graph.LinkConsumer(2, 5)
		graph.LinkConsumer(4, 5)

		assert.Equal(t, []uint64{2, 4, 9}, graph.ConsumersOf(5))
	})

	t.Run("should move a consumer between distributors", func(t *testing.T) {
		graph := NewGraph()
		graph.LinkConsumer(3, 5)

		graph.LinkConsumer(3, 6)

		assert.Empty(t, graph.ConsumersOf(5))
		assert.Equal(t, []uint64{3}, graph.ConsumersOf(6))
	})
}

func TestUnlinked(t *testing.T) {
	t.Run("should return zero supplier for unlinked entities", func(t *testing.T) {
		graph := NewGraph()

		assert.Equal(t, uint64(0), graph.SupplierOfSubstation(1))
		assert.Equal(t, uint64(0), graph.SupplierOfConsumer(1))
	})
}
