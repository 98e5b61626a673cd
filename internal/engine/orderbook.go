package engine

// OrderBook is a single-symbol limit order book with price-time priority.
// All operations must be serialized by the caller; the book performs no
// internal locking.
type OrderBook struct {
	ctx    *Context
	symbol string

	bids *sideBook
	asks *sideBook

	// index maps order id to its resting order. The order carries its own
	// level pointer and queue links, so the map value is the whole handle.
	index map[uint64]*Order

	// Top-of-book cache, zero when the side is empty. Kept consistent with
	// the side books before control returns to the caller.
	bestBid uint32
	bestAsk uint32

	// Side liquidity counters for O(1) stats.
	bidVolume uint64
	askVolume uint64

	// Set for the duration of a mutating call. A callback that re-enters a
	// mutation sees it and is refused.
	busy bool
}

// Stats is an O(1) snapshot of book-keeping counters.
type Stats struct {
	TotalOrders uint64
	BidLevels   int
	AskLevels   int
	BidVolume   uint64
	AskVolume   uint64
}

// OrderInfo describes a resting order.
type OrderInfo struct {
	Side     Side
	Price    uint32
	Original uint32
	Filled   uint32
}

// DepthLevel is one (price, aggregate quantity) rung of a depth snapshot.
type DepthLevel struct {
	Price    uint32
	Quantity uint64
}

func newOrderBook(ctx *Context, symbol string) *OrderBook {
	return &OrderBook{
		ctx:    ctx,
		symbol: symbol,
		bids:   newSideBook(Buy),
		asks:   newSideBook(Sell),
		index:  make(map[uint64]*Order),
	}
}

func (b *OrderBook) Symbol() string {
	return b.symbol
}

// enter marks the book busy for a mutating call. Callbacks fire while the
// flag is set, so a callback that mutates the originating book fails here
// instead of corrupting the sweep in progress.
func (b *OrderBook) enter() error {
	if b.busy {
		return ErrReentrantCall
	}
	b.busy = true
	return nil
}

func (b *OrderBook) leave() {
	b.busy = false
}

// AddLimit submits a GTC limit order with no flags.
func (b *OrderBook) AddLimit(id uint64, side Side, price, qty uint32) error {
	return b.AddLimitWith(id, side, price, qty, GTC, FlagNone)
}

// AddLimitWith submits a limit order with explicit time-in-force and flags.
// Validation runs in order; the first failure wins and leaves the book
// untouched with no events emitted.
func (b *OrderBook) AddLimitWith(id uint64, side Side, price, qty uint32, tif TimeInForce, flags Flag) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	if qty == 0 {
		return ErrInvalidQuantity
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	if _, ok := b.index[id]; ok {
		return ErrDuplicateOrder
	}
	if side != Buy && side != Sell {
		return ErrInvalidParam
	}
	// Reserved surfaces: day/GTD expiry and hidden/AON execution are part
	// of the wire contract but have no engine semantics yet.
	if tif == Day || tif == GTD {
		return ErrInvalidParam
	}
	if flags&(FlagHidden|FlagAON) != 0 {
		return ErrInvalidParam
	}
	return b.matchAndRest(id, side, price, qty, 0, LimitOrder, tif, flags)
}

// AddMarket submits a market order. It sweeps available liquidity and
// discards any residual; it never rests. Running out of liquidity is not an
// error.
func (b *OrderBook) AddMarket(id uint64, side Side, qty uint32) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	if qty == 0 {
		return ErrInvalidQuantity
	}
	if _, ok := b.index[id]; ok {
		return ErrDuplicateOrder
	}
	if side != Buy && side != Sell {
		return ErrInvalidParam
	}
	return b.matchAndRest(id, side, 0, qty, 0, MarketOrder, IOC, FlagNone)
}

// Cancel removes a resting order, deleting its level if it was the last
// order there.
func (b *OrderBook) Cancel(id uint64) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	o, ok := b.index[id]
	if !ok {
		return ErrOrderNotFound
	}
	remaining := o.Remaining()
	b.unlink(o)
	delete(b.index, id)
	b.ctx.releaseOrder(o)
	b.refreshTopOfBook()
	b.emitOrderEvent(id, EventCancelled, 0, remaining)
	return nil
}

// Modify changes a resting order's total quantity. A reduction takes effect
// in place and keeps the order's queue position. An increase loses time
// priority: the order is detached, re-timestamped, and re-enters through the
// matcher. Reducing exactly to the filled quantity completes the order.
func (b *OrderBook) Modify(id uint64, newQty uint32) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	o, ok := b.index[id]
	if !ok {
		return ErrOrderNotFound
	}
	if newQty == 0 || newQty < o.Filled {
		return ErrInvalidQuantity
	}
	switch {
	case newQty == o.Original:
		return nil
	case newQty == o.Filled:
		b.unlink(o)
		delete(b.index, id)
		b.ctx.releaseOrder(o)
		b.refreshTopOfBook()
		b.emitOrderEvent(id, EventFilled, 0, 0)
		return nil
	case newQty < o.Original:
		delta := uint64(o.Original - newQty)
		o.level.reduceQuantity(o, newQty)
		b.subVolume(o.Side, delta)
		return nil
	}
	// Size increase: detach and re-enter as a fresh arrival.
	side, price, tif, flags, filled := o.Side, o.Price, o.TIF, o.Flags, o.Filled
	b.unlink(o)
	delete(b.index, id)
	b.ctx.releaseOrder(o)
	return b.matchAndRest(id, side, price, newQty, filled, LimitOrder, tif, flags)
}

// Clear removes every order and level without emitting events. This is a
// host-administrative reset.
func (b *OrderBook) Clear() {
	for _, sb := range [...]*sideBook{b.bids, b.asks} {
		var levels []*priceLevel
		sb.walkFromBest(func(level *priceLevel) bool {
			levels = append(levels, level)
			return true
		})
		sb.clear()
		for _, level := range levels {
			for o := level.head; o != nil; {
				next := o.next
				b.ctx.releaseOrder(o)
				o = next
			}
			level.head, level.tail = nil, nil
			b.ctx.releaseLevel(level)
		}
	}
	clear(b.index)
	b.bidVolume, b.askVolume = 0, 0
	b.bestBid, b.bestAsk = 0, 0
}

// --- Queries -----------------------------------------------------------------

// BestBid returns the highest resting buy price, or 0 if no bids rest.
func (b *OrderBook) BestBid() uint32 {
	return b.bestBid
}

// BestAsk returns the lowest resting sell price, or 0 if no asks rest.
func (b *OrderBook) BestAsk() uint32 {
	return b.bestAsk
}

// Spread returns best ask minus best bid, or 0 if either side is empty.
func (b *OrderBook) Spread() uint32 {
	if b.bestBid == 0 || b.bestAsk == 0 {
		return 0
	}
	return b.bestAsk - b.bestBid
}

// MidPrice returns the integer midpoint of the top of book, or 0 if either
// side is empty.
func (b *OrderBook) MidPrice() uint32 {
	if b.bestBid == 0 || b.bestAsk == 0 {
		return 0
	}
	return uint32((uint64(b.bestBid) + uint64(b.bestAsk)) / 2)
}

// VolumeAtPrice returns the total remaining quantity resting at a price on
// one side, or 0.
func (b *OrderBook) VolumeAtPrice(side Side, price uint32) uint64 {
	level := b.sideBook(side).levelAt(price)
	if level == nil {
		return 0
	}
	return level.volume
}

// HasOrder reports whether an order id is resting in the book.
func (b *OrderBook) HasOrder(id uint64) bool {
	_, ok := b.index[id]
	return ok
}

// OrderInfo returns the current state of a resting order.
func (b *OrderBook) OrderInfo(id uint64) (OrderInfo, error) {
	o, ok := b.index[id]
	if !ok {
		return OrderInfo{}, ErrOrderNotFound
	}
	return OrderInfo{
		Side:     o.Side,
		Price:    o.Price,
		Original: o.Original,
		Filled:   o.Filled,
	}, nil
}

// Stats returns the book-keeping counters.
func (b *OrderBook) Stats() Stats {
	return Stats{
		TotalOrders: uint64(len(b.index)),
		BidLevels:   b.bids.len(),
		AskLevels:   b.asks.len(),
		BidVolume:   b.bidVolume,
		AskVolume:   b.askVolume,
	}
}

// Depth returns up to maxLevels (price, quantity) rungs in best-first order.
func (b *OrderBook) Depth(side Side, maxLevels int) []DepthLevel {
	if maxLevels <= 0 {
		return nil
	}
	depth := make([]DepthLevel, 0, maxLevels)
	b.sideBook(side).walkFromBest(func(level *priceLevel) bool {
		depth = append(depth, DepthLevel{Price: level.price, Quantity: level.volume})
		return len(depth) < maxLevels
	})
	return depth
}

// --- Internal plumbing -------------------------------------------------------

func (b *OrderBook) sideBook(side Side) *sideBook {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// rest threads an order onto its own side, creating the level lazily.
func (b *OrderBook) rest(o *Order) {
	sb := b.sideBook(o.Side)
	level := sb.levelAt(o.Price)
	if level == nil {
		level = b.ctx.acquireLevel(o.Price)
		sb.insertLevel(level)
	}
	level.append(o)
	b.index[o.ID] = o
	b.addVolume(o.Side, uint64(o.Remaining()))
}

// unlink detaches a resting order from its level, dropping the level if it
// empties. The index entry is the caller's to remove.
func (b *OrderBook) unlink(o *Order) {
	level := o.level
	b.subVolume(o.Side, uint64(o.Remaining()))
	level.remove(o)
	if level.empty() {
		b.sideBook(o.Side).removeLevel(level)
		b.ctx.releaseLevel(level)
	}
}

func (b *OrderBook) addVolume(side Side, qty uint64) {
	if side == Buy {
		b.bidVolume += qty
	} else {
		b.askVolume += qty
	}
}

func (b *OrderBook) subVolume(side Side, qty uint64) {
	if side == Buy {
		b.bidVolume -= qty
	} else {
		b.askVolume -= qty
	}
}

func (b *OrderBook) refreshTopOfBook() {
	if level := b.bids.bestLevel(); level != nil {
		b.bestBid = level.price
	} else {
		b.bestBid = 0
	}
	if level := b.asks.bestLevel(); level != nil {
		b.bestAsk = level.price
	} else {
		b.bestAsk = 0
	}
}
