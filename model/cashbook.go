package model

// CashAmount is a single currency holding in the cash book.
type CashAmount struct {
	Currency             string
	Amount               float64
	ConversionRateSymbol string // e.g. "EURUSD", the symbol whose price converts this currency
}

// CashBook tracks every currency (or CFD) holding the portfolio carries and
// the symbol that prices its conversion rate back to the account currency.
type CashBook struct {
	AccountCurrency string
	Holdings        map[string]*CashAmount // keyed by currency
}

// NewCashBook creates a cash book with the given account currency.
func NewCashBook(accountCurrency string) *CashBook {
	return &CashBook{
		AccountCurrency: accountCurrency,
		Holdings:        make(map[string]*CashAmount),
	}
}

// SymbolIsTracked reports whether symbol prices any currency's conversion
// rate, and if so returns the currencies it backs.
func (c *CashBook) SymbolIsTracked(symbol string) []*CashAmount {
	var out []*CashAmount
	for _, h := range c.Holdings {
		if h.ConversionRateSymbol == symbol {
			out = append(out, h)
		}
	}
	return out
}

// CashBookUpdate is one entry in a TimeSlice's cash-book-update list: the
// latest non-auxiliary price observed for a tracked conversion-rate symbol.
type CashBookUpdate struct {
	Currency string
	Price    float64
}
