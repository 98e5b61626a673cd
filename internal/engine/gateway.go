package engine

// Symbol-routing verbs used by the access layer. Each resolves the owning
// book and forwards; for unknown symbols the mutating verbs fail with
// ErrBookNotFound and HasOrder reports false.

func (ctx *Context) AddLimit(symbol string, id uint64, side Side, price, qty uint32, tif TimeInForce, flags Flag) error {
	book, err := ctx.Book(symbol)
	if err != nil {
		return err
	}
	return book.AddLimitWith(id, side, price, qty, tif, flags)
}

func (ctx *Context) AddMarket(symbol string, id uint64, side Side, qty uint32) error {
	book, err := ctx.Book(symbol)
	if err != nil {
		return err
	}
	return book.AddMarket(id, side, qty)
}

func (ctx *Context) Cancel(symbol string, id uint64) error {
	book, err := ctx.Book(symbol)
	if err != nil {
		return err
	}
	return book.Cancel(id)
}

func (ctx *Context) Modify(symbol string, id uint64, newQty uint32) error {
	book, err := ctx.Book(symbol)
	if err != nil {
		return err
	}
	return book.Modify(id, newQty)
}

func (ctx *Context) HasOrder(symbol string, id uint64) bool {
	book, err := ctx.Book(symbol)
	if err != nil {
		return false
	}
	return book.HasOrder(id)
}
