package engine

import "github.com/tidwall/btree"

// sideBook holds one side's price levels, sorted best-first: descending
// price for bids, ascending for asks. The comparator bakes the side in, so
// Min is always the best level.
type sideBook struct {
	side   Side
	levels *btree.BTreeG[*priceLevel]
}

func newSideBook(side Side) *sideBook {
	var less func(a, b *priceLevel) bool
	if side == Buy {
		// Sorted greatest first.
		less = func(a, b *priceLevel) bool { return a.price > b.price }
	} else {
		// Sorted least first.
		less = func(a, b *priceLevel) bool { return a.price < b.price }
	}
	return &sideBook{
		side:   side,
		levels: btree.NewBTreeG(less),
	}
}

// bestLevel returns the level first in best-first traversal, or nil.
func (sb *sideBook) bestLevel() *priceLevel {
	level, ok := sb.levels.MinMut()
	if !ok {
		return nil
	}
	return level
}

// levelAt returns the level at an exact price, or nil. The comparator only
// reads prices, so a stack probe is enough for the lookup.
func (sb *sideBook) levelAt(price uint32) *priceLevel {
	level, ok := sb.levels.GetMut(&priceLevel{price: price})
	if !ok {
		return nil
	}
	return level
}

// insertLevel adds a freshly created level to the tree.
func (sb *sideBook) insertLevel(level *priceLevel) {
	sb.levels.Set(level)
}

// removeLevel drops an emptied level from the tree.
func (sb *sideBook) removeLevel(level *priceLevel) {
	sb.levels.Delete(level)
}

// walkFromBest visits levels in best-first order until visit returns false.
func (sb *sideBook) walkFromBest(visit func(*priceLevel) bool) {
	sb.levels.Scan(visit)
}

// len is the number of populated price levels on this side.
func (sb *sideBook) len() int {
	return sb.levels.Len()
}

// clear drops every level. The caller is responsible for the orders that
// were threaded on them.
func (sb *sideBook) clear() {
	sb.levels.Clear()
}
