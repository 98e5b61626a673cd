package engine

// priceLevel is a FIFO queue of resting orders at one tick price. Orders are
// threaded through their intrusive links so removal from the middle of the
// queue never scans.
type priceLevel struct {
	price  uint32
	head   *Order
	tail   *Order
	count  uint32 // number of resting orders at this level
	volume uint64 // sum of remaining quantities across the queue
}

// append places an order at the tail of the queue.
func (l *priceLevel) append(o *Order) {
	o.level = l
	o.prev = l.tail
	o.next = nil
	if l.tail != nil {
		l.tail.next = o
	} else {
		l.head = o
	}
	l.tail = o
	l.count++
	l.volume += uint64(o.Remaining())
}

// peekHead returns the order with the highest time priority, or nil.
func (l *priceLevel) peekHead() *Order {
	return l.head
}

// remove unlinks an order from anywhere in the queue.
func (l *priceLevel) remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.level = nil
	o.prev = nil
	o.next = nil
	l.count--
	l.volume -= uint64(o.Remaining())
}

// tradeAtHead executes up to qty against the head order and returns the
// executed size plus whether the head was fully consumed. A fully consumed
// head is unlinked; a partial fill leaves the head in place, preserving its
// time priority.
func (l *priceLevel) tradeAtHead(qty uint32) (executed uint32, full bool) {
	o := l.head
	executed = min(qty, o.Remaining())
	o.Filled += executed
	l.volume -= uint64(executed)
	if o.Remaining() == 0 {
		l.remove(o)
		return executed, true
	}
	return executed, false
}

// reduceQuantity lowers an order's original quantity in place. The order
// keeps its queue position. newOriginal must cover what has already filled
// and must leave the order open.
func (l *priceLevel) reduceQuantity(o *Order, newOriginal uint32) {
	l.volume -= uint64(o.Original - newOriginal)
	o.Original = newOriginal
}

// empty reports whether the level holds no orders and should be dropped from
// its side book.
func (l *priceLevel) empty() bool {
	return l.head == nil
}

// reset clears a level for pool reuse.
func (l *priceLevel) reset() {
	*l = priceLevel{}
}
