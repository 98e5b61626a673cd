package engine

// Event emission. Callbacks run synchronously on the mutating goroutine, in
// execution order: per match a trade followed by the passive order's
// lifecycle event, then the aggressive order's terminal event. Mutating the
// originating book from inside a callback is rejected (see OrderBook.enter).

func (b *OrderBook) emitTrade(aggressiveID, passiveID uint64, price, quantity uint32) {
	if b.ctx.onTrade == nil {
		return
	}
	b.ctx.onTrade(aggressiveID, passiveID, price, quantity, b.ctx.timestamp)
}

func (b *OrderBook) emitOrderEvent(orderID uint64, kind EventKind, quantity, remaining uint32) {
	if b.ctx.onOrderEvent == nil {
		return
	}
	b.ctx.onOrderEvent(orderID, kind, quantity, remaining)
}
