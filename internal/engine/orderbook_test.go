package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

type tradeRec struct {
	aggressiveID uint64
	passiveID    uint64
	price        uint32
	quantity     uint32
	timestamp    uint64
}

type eventRec struct {
	orderID   uint64
	kind      EventKind
	quantity  uint32
	remaining uint32
}

// recorder captures every callback emission for verification.
type recorder struct {
	trades []tradeRec
	events []eventRec
}

func (r *recorder) clear() {
	r.trades = r.trades[:0]
	r.events = r.events[:0]
}

func (r *recorder) eventsFor(id uint64) []eventRec {
	var out []eventRec
	for _, e := range r.events {
		if e.orderID == id {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) lastTrade() tradeRec {
	return r.trades[len(r.trades)-1]
}

// newTestBook creates a fresh context and book with callbacks recording into
// the returned recorder.
func newTestBook(t *testing.T) (*OrderBook, *recorder) {
	t.Helper()
	ctx := NewContext()
	rec := &recorder{}
	ctx.SetTradeHandler(func(aggressiveID, passiveID uint64, price, quantity uint32, timestamp uint64) {
		rec.trades = append(rec.trades, tradeRec{aggressiveID, passiveID, price, quantity, timestamp})
	})
	ctx.SetOrderEventHandler(func(orderID uint64, kind EventKind, quantity, remaining uint32) {
		rec.events = append(rec.events, eventRec{orderID, kind, quantity, remaining})
	})
	book, err := ctx.CreateOrderBook("TEST")
	require.NoError(t, err)
	return book, rec
}

// placeOrders inserts a batch of GTC limit orders at one price/side with
// sequential ids starting at firstID.
func placeOrders(t *testing.T, book *OrderBook, firstID uint64, side Side, price uint32, quantities ...uint32) {
	t.Helper()
	for i, qty := range quantities {
		require.NoError(t, book.AddLimit(firstID+uint64(i), side, price, qty))
	}
}

// --- Tests ------------------------------------------------------------------

func TestInitialMarketState(t *testing.T) {
	book, _ := newTestBook(t)

	assert.Equal(t, uint32(0), book.BestBid())
	assert.Equal(t, uint32(0), book.BestAsk())
	assert.Equal(t, uint32(0), book.Spread())
	assert.Equal(t, uint32(0), book.MidPrice())
	assert.Equal(t, "TEST", book.Symbol())

	stats := book.Stats()
	assert.Equal(t, uint64(0), stats.TotalOrders)
	assert.Equal(t, 0, stats.BidLevels)
	assert.Equal(t, 0, stats.AskLevels)
}

func TestAddSingleBid(t *testing.T) {
	book, rec := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Buy, 10000, 100))

	assert.Equal(t, uint32(10000), book.BestBid())
	assert.Equal(t, uint32(0), book.BestAsk())
	assert.True(t, book.HasOrder(1))
	assert.Equal(t, []eventRec{{1, EventAccepted, 0, 100}}, rec.events)
}

func TestAddSingleAsk(t *testing.T) {
	book, rec := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Sell, 10100, 50))

	assert.Equal(t, uint32(0), book.BestBid())
	assert.Equal(t, uint32(10100), book.BestAsk())
	assert.Equal(t, []eventRec{{1, EventAccepted, 0, 50}}, rec.events)
}

func TestAddMultipleBids(t *testing.T) {
	book, _ := newTestBook(t)

	// Best bid must track the highest price regardless of insertion order.
	require.NoError(t, book.AddLimit(1, Buy, 9900, 100))
	require.NoError(t, book.AddLimit(2, Buy, 10000, 100))
	require.NoError(t, book.AddLimit(3, Buy, 9800, 100))

	assert.Equal(t, uint32(10000), book.BestBid())
	assert.Equal(t, 3, book.Stats().BidLevels)
}

func TestAddMultipleAsks(t *testing.T) {
	book, _ := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Sell, 10200, 100))
	require.NoError(t, book.AddLimit(2, Sell, 10100, 100))
	require.NoError(t, book.AddLimit(3, Sell, 10300, 100))

	assert.Equal(t, uint32(10100), book.BestAsk())
	assert.Equal(t, 3, book.Stats().AskLevels)
}

func TestDuplicateOrderID(t *testing.T) {
	book, rec := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Buy, 10000, 100))
	rec.clear()

	// Same id on either side must be refused with the book untouched.
	assert.ErrorIs(t, book.AddLimit(1, Buy, 9900, 50), ErrDuplicateOrder)
	assert.ErrorIs(t, book.AddLimit(1, Sell, 10100, 50), ErrDuplicateOrder)
	assert.Empty(t, rec.events)
	assert.Equal(t, uint64(1), book.Stats().TotalOrders)
}

func TestValidationOrder(t *testing.T) {
	book, rec := newTestBook(t)

	assert.ErrorIs(t, book.AddLimit(1, Buy, 10000, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, book.AddLimit(1, Buy, 0, 100), ErrInvalidPrice)
	// Quantity is checked before price.
	assert.ErrorIs(t, book.AddLimit(1, Buy, 0, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, book.AddMarket(1, Buy, 0), ErrInvalidQuantity)

	assert.Empty(t, rec.events)
	assert.Equal(t, uint64(0), book.Stats().TotalOrders)
}

func TestReservedSurfacesRejected(t *testing.T) {
	book, _ := newTestBook(t)

	assert.ErrorIs(t, book.AddLimitWith(1, Buy, 10000, 100, Day, FlagNone), ErrInvalidParam)
	assert.ErrorIs(t, book.AddLimitWith(1, Buy, 10000, 100, GTD, FlagNone), ErrInvalidParam)
	assert.ErrorIs(t, book.AddLimitWith(1, Buy, 10000, 100, GTC, FlagHidden), ErrInvalidParam)
	assert.ErrorIs(t, book.AddLimitWith(1, Buy, 10000, 100, GTC, FlagAON), ErrInvalidParam)
	assert.False(t, book.HasOrder(1))
}

func TestSpreadCalculation(t *testing.T) {
	book, _ := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Buy, 9900, 100))
	assert.Equal(t, uint32(0), book.Spread(), "one-sided book has no spread")

	require.NoError(t, book.AddLimit(2, Sell, 10100, 100))
	assert.Equal(t, uint32(200), book.Spread())
}

func TestMidPrice(t *testing.T) {
	book, _ := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Buy, 10000, 100))
	require.NoError(t, book.AddLimit(2, Sell, 10200, 100))

	assert.Equal(t, uint32(10100), book.MidPrice())
}

func TestCancelExistingOrder(t *testing.T) {
	book, rec := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Buy, 10000, 100))
	rec.clear()

	require.NoError(t, book.Cancel(1))

	assert.False(t, book.HasOrder(1))
	assert.Equal(t, uint32(0), book.BestBid())
	assert.Equal(t, []eventRec{{1, EventCancelled, 0, 100}}, rec.events)
}

func TestCancelNonexistentOrder(t *testing.T) {
	book, _ := newTestBook(t)

	assert.ErrorIs(t, book.Cancel(42), ErrOrderNotFound)
}

func TestCancelUpdatesBestPrices(t *testing.T) {
	book, _ := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Buy, 10000, 100))
	require.NoError(t, book.AddLimit(2, Buy, 9900, 100))

	require.NoError(t, book.Cancel(1))
	assert.Equal(t, uint32(9900), book.BestBid())

	require.NoError(t, book.Cancel(2))
	assert.Equal(t, uint32(0), book.BestBid())
}

func TestHasOrder(t *testing.T) {
	book, _ := newTestBook(t)

	assert.False(t, book.HasOrder(1))
	require.NoError(t, book.AddLimit(1, Sell, 10100, 100))
	assert.True(t, book.HasOrder(1))
	require.NoError(t, book.Cancel(1))
	assert.False(t, book.HasOrder(1))
}

func TestOrderInfo(t *testing.T) {
	book, _ := newTestBook(t)

	require.NoError(t, book.AddLimit(1, Sell, 10100, 100))

	info, err := book.OrderInfo(1)
	require.NoError(t, err)
	assert.Equal(t, OrderInfo{Side: Sell, Price: 10100, Original: 100, Filled: 0}, info)

	// Partial fill is reflected.
	require.NoError(t, book.AddLimit(2, Buy, 10100, 30))
	info, err = book.OrderInfo(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), info.Filled)

	_, err = book.OrderInfo(99)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPopulatedBookStats(t *testing.T) {
	book, _ := newTestBook(t)

	placeOrders(t, book, 1, Buy, 10000, 100, 50)
	placeOrders(t, book, 3, Buy, 9900, 25)
	placeOrders(t, book, 4, Sell, 10100, 75)

	stats := book.Stats()
	assert.Equal(t, uint64(4), stats.TotalOrders)
	assert.Equal(t, 2, stats.BidLevels)
	assert.Equal(t, 1, stats.AskLevels)
	assert.Equal(t, uint64(175), stats.BidVolume)
	assert.Equal(t, uint64(75), stats.AskVolume)
}

func TestVolumeAtPrice(t *testing.T) {
	book, _ := newTestBook(t)

	placeOrders(t, book, 1, Buy, 10000, 100, 50, 25)
	placeOrders(t, book, 4, Sell, 10100, 10)

	assert.Equal(t, uint64(175), book.VolumeAtPrice(Buy, 10000))
	assert.Equal(t, uint64(10), book.VolumeAtPrice(Sell, 10100))
	assert.Equal(t, uint64(0), book.VolumeAtPrice(Buy, 9900))
	assert.Equal(t, uint64(0), book.VolumeAtPrice(Sell, 10000))

	// Partial fill shrinks the aggregate.
	require.NoError(t, book.AddLimit(5, Sell, 10000, 60))
	assert.Equal(t, uint64(115), book.VolumeAtPrice(Buy, 10000))
}

func TestDepthSnapshot(t *testing.T) {
	book, _ := newTestBook(t)

	placeOrders(t, book, 1, Sell, 10100, 30)
	placeOrders(t, book, 2, Sell, 10000, 10, 20)
	placeOrders(t, book, 4, Sell, 10200, 40)

	depth := book.Depth(Sell, 2)
	assert.Equal(t, []DepthLevel{
		{Price: 10000, Quantity: 30},
		{Price: 10100, Quantity: 30},
	}, depth, "depth walks best-first and honours the level cap")

	assert.Len(t, book.Depth(Sell, 10), 3)
	assert.Empty(t, book.Depth(Buy, 10))
	assert.Nil(t, book.Depth(Sell, 0))
}

func TestClearRemovesAllOrders(t *testing.T) {
	book, rec := newTestBook(t)

	placeOrders(t, book, 1, Buy, 10000, 100, 50)
	placeOrders(t, book, 3, Sell, 10100, 75, 25)
	rec.clear()

	book.Clear()

	stats := book.Stats()
	assert.Equal(t, uint64(0), stats.TotalOrders)
	assert.Equal(t, 0, stats.BidLevels)
	assert.Equal(t, 0, stats.AskLevels)
	assert.Equal(t, uint64(0), stats.BidVolume)
	assert.Equal(t, uint64(0), stats.AskVolume)
	assert.Equal(t, uint32(0), book.BestBid())
	assert.Equal(t, uint32(0), book.BestAsk())
	assert.False(t, book.HasOrder(1))
	// Administrative reset: no events.
	assert.Empty(t, rec.events)

	// The book is usable again afterwards.
	require.NoError(t, book.AddLimit(1, Buy, 9900, 10))
	assert.Equal(t, uint32(9900), book.BestBid())
}

func TestContextBookSet(t *testing.T) {
	ctx := NewContext()

	book, err := ctx.CreateOrderBook("AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", book.Symbol())

	_, err = ctx.CreateOrderBook("AAPL")
	assert.ErrorIs(t, err, ErrBookExists)
	_, err = ctx.CreateOrderBook("")
	assert.ErrorIs(t, err, ErrInvalidParam)

	got, err := ctx.Book("AAPL")
	require.NoError(t, err)
	assert.Same(t, book, got)

	require.NoError(t, ctx.RemoveOrderBook("AAPL"))
	_, err = ctx.Book("AAPL")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, ctx.RemoveOrderBook("AAPL"), ErrBookNotFound)
}

func TestTimestampStampsTradesAndArrivals(t *testing.T) {
	ctx := NewContext()
	var stamps []uint64
	ctx.SetTradeHandler(func(_, _ uint64, _, _ uint32, timestamp uint64) {
		stamps = append(stamps, timestamp)
	})
	book, err := ctx.CreateOrderBook("TEST")
	require.NoError(t, err)

	ctx.SetTimestamp(1000)
	require.NoError(t, book.AddLimit(1, Sell, 10000, 50))
	ctx.SetTimestamp(2000)
	require.NoError(t, book.AddLimit(2, Buy, 10000, 50))

	assert.Equal(t, []uint64{2000}, stamps)
}

func TestCallbackReentrancyRejected(t *testing.T) {
	ctx := NewContext()
	book, err := ctx.CreateOrderBook("TEST")
	require.NoError(t, err)

	var inner error
	ctx.SetOrderEventHandler(func(orderID uint64, kind EventKind, _, _ uint32) {
		inner = book.Cancel(orderID)
	})

	require.NoError(t, book.AddLimit(1, Buy, 10000, 100))
	assert.ErrorIs(t, inner, ErrReentrantCall)
	assert.True(t, book.HasOrder(1), "re-entrant cancel must not mutate the book")
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusOrderNotFound, StatusOf(ErrOrderNotFound))
	assert.Equal(t, StatusInvalidPrice, StatusOf(ErrInvalidPrice))
	assert.Equal(t, StatusInvalidQuantity, StatusOf(ErrInvalidQuantity))
	assert.Equal(t, StatusDuplicateOrder, StatusOf(ErrDuplicateOrder))
	assert.Equal(t, StatusWouldMatch, StatusOf(ErrWouldMatch))
	assert.Equal(t, StatusCannotFill, StatusOf(ErrCannotFill))
	assert.Equal(t, StatusError, StatusOf(assert.AnError))
}

func TestDisplayNames(t *testing.T) {
	assert.Equal(t, "BUY", Buy.String())
	assert.Equal(t, "SELL", Sell.String())
	assert.Equal(t, "LIMIT", LimitOrder.String())
	assert.Equal(t, "MARKET", MarketOrder.String())
	assert.Equal(t, "STOP_LIMIT", StopLimitOrder.String())
	assert.Equal(t, "GTC", GTC.String())
	assert.Equal(t, "IOC", IOC.String())
	assert.Equal(t, "FOK", FOK.String())
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "WOULD_MATCH", StatusWouldMatch.String())
	assert.Equal(t, "PARTIAL", EventPartial.String())
	assert.Equal(t, "UNKNOWN", Side(9).String())
}
