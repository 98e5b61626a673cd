package engine

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// TradeHandler receives every execution, synchronously, inside the call that
// produced it.
type TradeHandler func(aggressiveID, passiveID uint64, price, quantity uint32, timestamp uint64)

// OrderEventHandler receives order-lifecycle events. For EventPartial on a
// passive order, quantity is the size executed in that step and remaining is
// what stays on the book; for EventFilled remaining is zero.
type OrderEventHandler func(orderID uint64, kind EventKind, quantity, remaining uint32)

// Context holds state shared by every book it owns: the host-set logical
// timestamp, the callback sinks, and the allocator pools. The engine never
// reads a clock; the host advances the timestamp between calls, which keeps
// replays deterministic.
type Context struct {
	timestamp uint64

	onTrade      TradeHandler
	onOrderEvent OrderEventHandler

	books map[string]*OrderBook

	orderPool sync.Pool
	levelPool sync.Pool
}

func NewContext() *Context {
	return &Context{
		books:     make(map[string]*OrderBook),
		orderPool: sync.Pool{New: func() any { return new(Order) }},
		levelPool: sync.Pool{New: func() any { return new(priceLevel) }},
	}
}

// SetTimestamp sets the logical clock stamped onto arrivals and trades.
// The host contract requires it to be non-decreasing across calls that
// produce events.
func (ctx *Context) SetTimestamp(ts uint64) {
	ctx.timestamp = ts
}

func (ctx *Context) Timestamp() uint64 {
	return ctx.timestamp
}

// SetTradeHandler registers the trade sink. A nil handler is a no-op sink.
// Setting is idempotent; the latest registration wins.
func (ctx *Context) SetTradeHandler(h TradeHandler) {
	ctx.onTrade = h
}

// SetOrderEventHandler registers the order-lifecycle sink.
func (ctx *Context) SetOrderEventHandler(h OrderEventHandler) {
	ctx.onOrderEvent = h
}

// CreateOrderBook creates and registers a book for symbol. The Context owns
// the book; its lifetime is bound to the Context's.
func (ctx *Context) CreateOrderBook(symbol string) (*OrderBook, error) {
	if symbol == "" {
		return nil, ErrInvalidParam
	}
	if _, ok := ctx.books[symbol]; ok {
		return nil, ErrBookExists
	}
	book := newOrderBook(ctx, symbol)
	ctx.books[symbol] = book
	return book, nil
}

// Book returns the book registered for symbol.
func (ctx *Context) Book(symbol string) (*OrderBook, error) {
	book, ok := ctx.books[symbol]
	if !ok {
		return nil, ErrBookNotFound
	}
	return book, nil
}

// RemoveOrderBook clears and unregisters a book.
func (ctx *Context) RemoveOrderBook(symbol string) error {
	book, ok := ctx.books[symbol]
	if !ok {
		return ErrBookNotFound
	}
	book.Clear()
	delete(ctx.books, symbol)
	return nil
}

// LogBooks dumps a top-of-book summary of every owned book.
func (ctx *Context) LogBooks() {
	for symbol, book := range ctx.books {
		stats := book.Stats()
		log.Info().
			Str("symbol", symbol).
			Uint32("bestBid", book.BestBid()).
			Uint32("bestAsk", book.BestAsk()).
			Uint64("totalOrders", stats.TotalOrders).
			Int("bidLevels", stats.BidLevels).
			Int("askLevels", stats.AskLevels).
			Msg("book state")
	}
}

// --- Pool plumbing -----------------------------------------------------------

func (ctx *Context) acquireOrder() *Order {
	return ctx.orderPool.Get().(*Order)
}

func (ctx *Context) releaseOrder(o *Order) {
	o.reset()
	ctx.orderPool.Put(o)
}

func (ctx *Context) acquireLevel(price uint32) *priceLevel {
	l := ctx.levelPool.Get().(*priceLevel)
	l.price = price
	return l
}

func (ctx *Context) releaseLevel(l *priceLevel) {
	l.reset()
	ctx.levelPool.Put(l)
}
