package engine

// matchAndRest runs an aggressive arrival against the opposite side and
// disposes of the residual according to type and time-in-force. carriedFill
// is non-zero only when a size-increased modify re-enters with executions
// already on the order.
//
// Sweep contract: trades execute at the resting price, best level first,
// FIFO within a level. Each match emits the trade and then the passive
// order's lifecycle event; the aggressive order's terminal event comes last.
func (b *OrderBook) matchAndRest(id uint64, side Side, price, qty, carriedFill uint32, typ OrderType, tif TimeInForce, flags Flag) error {
	opp := b.sideBook(side.Opposite())

	// Post-only and fill-or-kill are preflight checks: on rejection the book
	// and the event stream are indistinguishable from a no-op.
	if flags&FlagPostOnly != 0 {
		if level := opp.bestLevel(); level != nil && crosses(side, typ, price, level.price) {
			return ErrWouldMatch
		}
	}
	if tif == FOK {
		if b.fillable(side, typ, price) < uint64(qty-carriedFill) {
			return ErrCannotFill
		}
	}

	remaining := qty - carriedFill
	var executedTotal uint32

	for remaining > 0 {
		level := opp.bestLevel()
		if level == nil || !crosses(side, typ, price, level.price) {
			break
		}
		head := level.peekHead()
		passiveID := head.ID
		levelPrice := level.price
		executed, full := level.tradeAtHead(remaining)
		remaining -= executed
		executedTotal += executed
		b.subVolume(side.Opposite(), uint64(executed))
		if full {
			delete(b.index, passiveID)
		}
		if level.empty() {
			opp.removeLevel(level)
			b.ctx.releaseLevel(level)
		}

		b.emitTrade(id, passiveID, levelPrice, executed)
		if full {
			b.emitOrderEvent(passiveID, EventFilled, executed, 0)
			b.ctx.releaseOrder(head)
		} else {
			b.emitOrderEvent(passiveID, EventPartial, executed, head.Remaining())
		}
	}

	if remaining == 0 {
		b.refreshTopOfBook()
		b.emitOrderEvent(id, EventFilled, executedTotal, 0)
		return nil
	}

	// Residual disposition.
	if typ == MarketOrder || tif == IOC {
		b.refreshTopOfBook()
		if executedTotal > 0 {
			b.emitOrderEvent(id, EventPartial, executedTotal, 0)
		}
		return nil
	}

	o := b.ctx.acquireOrder()
	*o = Order{
		ID:        id,
		Side:      side,
		Type:      typ,
		TIF:       tif,
		Flags:     flags,
		Price:     price,
		Original:  qty,
		Filled:    carriedFill + executedTotal,
		Timestamp: b.ctx.timestamp,
	}
	b.rest(o)
	b.refreshTopOfBook()
	if executedTotal > 0 {
		b.emitOrderEvent(id, EventPartial, executedTotal, o.Remaining())
	} else {
		b.emitOrderEvent(id, EventAccepted, 0, o.Remaining())
	}
	return nil
}

// crosses is the price gate: a market order always crosses while liquidity
// remains; a limit crosses when its price meets the resting level's.
func crosses(side Side, typ OrderType, price, levelPrice uint32) bool {
	if typ == MarketOrder {
		return true
	}
	if side == Buy {
		return price >= levelPrice
	}
	return price <= levelPrice
}

// fillable sums opposite-side liquidity reachable within the price gate.
// Used by the fill-or-kill preflight; walks best-first and stops as soon as
// the gate closes.
func (b *OrderBook) fillable(side Side, typ OrderType, price uint32) uint64 {
	var total uint64
	b.sideBook(side.Opposite()).walkFromBest(func(level *priceLevel) bool {
		if !crosses(side, typ, price, level.price) {
			return false
		}
		total += level.volume
		return true
	})
	return total
}
