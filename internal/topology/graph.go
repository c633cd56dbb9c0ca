package topology

import "sort"

// Graph is the cross-cutting "who supplies whom" index. Each downstream
// entity has at most one active upstream link at a time; the chain
// records every link change here, so the reverse indexes always mirror
// the ledgers' current links without touching their history.
//
// Graph is not safe for concurrent use; the chain serializes access.
type Graph struct {
	plantOfSubstation     map[uint64]uint64
	distributorOfConsumer map[uint64]uint64
	substationsOfPlant    map[uint64]map[uint64]struct{}
	consumersOfDist       map[uint64]map[uint64]struct{}
}

// NewGraph creates an empty relationship graph.
func NewGraph() *Graph {
	return &Graph{
		plantOfSubstation:     make(map[uint64]uint64),
		distributorOfConsumer: make(map[uint64]uint64),
		substationsOfPlant:    make(map[uint64]map[uint64]struct{}),
		consumersOfDist:       make(map[uint64]map[uint64]struct{}),
	}
}

// LinkSubstation records substation subID now buying from plantID,
// replacing any previous upstream link.
func (g *Graph) LinkSubstation(subID, plantID uint64) {
	if prev, ok := g.plantOfSubstation[subID]; ok {
		delete(g.substationsOfPlant[prev], subID)
	}
	g.plantOfSubstation[subID] = plantID
	if g.substationsOfPlant[plantID] == nil {
		g.substationsOfPlant[plantID] = make(map[uint64]struct{})
	}
	g.substationsOfPlant[plantID][subID] = struct{}{}
}

// LinkConsumer records consumer consumerID now drawing from distID,
// replacing any previous upstream link.
func (g *Graph) LinkConsumer(consumerID, distID uint64) {
	if prev, ok := g.distributorOfConsumer[consumerID]; ok {
		delete(g.consumersOfDist[prev], consumerID)
	}
	g.distributorOfConsumer[consumerID] = distID
	if g.consumersOfDist[distID] == nil {
		g.consumersOfDist[distID] = make(map[uint64]struct{})
	}
	g.consumersOfDist[distID][consumerID] = struct{}{}
}

// SupplierOfSubstation returns the plant currently supplying subID, 0 if
// unlinked.
func (g *Graph) SupplierOfSubstation(subID uint64) uint64 {
	return g.plantOfSubstation[subID]
}

// SupplierOfConsumer returns the distributor currently supplying
// consumerID, 0 if unlinked.
func (g *Graph) SupplierOfConsumer(consumerID uint64) uint64 {
	return g.distributorOfConsumer[consumerID]
}

// SubstationsOf returns the ids of substations currently buying from
// plantID, ascending.
func (g *Graph) SubstationsOf(plantID uint64) []uint64 {
	return sortedKeys(g.substationsOfPlant[plantID])
}

// ConsumersOf returns the ids of consumers currently drawing from
// distID, ascending.
func (g *Graph) ConsumersOf(distID uint64) []uint64 {
	return sortedKeys(g.consumersOfDist[distID])
}

func sortedKeys(set map[uint64]struct{}) []uint64 {
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
