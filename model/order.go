package model

import (
	"fmt"
	"time"
)

// SideType is an order's buy/sell direction.
type SideType string

// OrderType is an order's execution style.
type OrderType string

// OrderStatusType is an order's lifecycle state.
type OrderStatusType string

var (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

var (
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimitMaker      OrderType = "LIMIT_MAKER"
	OrderTypeStopLoss        OrderType = "STOP_LOSS"
	OrderTypeStopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	OrderTypeTakeProfit      OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
	OrderTypeMarketOnClose   OrderType = "MARKET_ON_CLOSE"
)

var (
	OrderStatusTypeNew             OrderStatusType = "NEW"
	OrderStatusTypePartiallyFilled OrderStatusType = "PARTIALLY_FILLED"
	OrderStatusTypeFilled          OrderStatusType = "FILLED"
	OrderStatusTypeCanceled        OrderStatusType = "CANCELED"
	OrderStatusTypePendingCancel   OrderStatusType = "PENDING_CANCEL"
	OrderStatusTypeRejected        OrderStatusType = "REJECTED"
	OrderStatusTypeExpired         OrderStatusType = "EXPIRED"
)

// Order is a brokerage order as seen by the core — the transaction handler
// owns fill semantics, this is just the record the algorithm manager loop
// reads and cancels/liquidates against.
type Order struct {
	ID         int64           `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	ExchangeID int64           `db:"exchange_id" json:"exchange_id"`
	Pair       string          `db:"pair" json:"pair"`
	Side       SideType        `db:"side" json:"side"`
	Type       OrderType       `db:"type" json:"type"`
	Status     OrderStatusType `db:"status" json:"status"`
	Price      float64         `db:"price" json:"price"`
	Quantity   float64         `db:"quantity" json:"quantity"`
	FilledQty  float64         `db:"filled_quantity" json:"filled_quantity"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Stop    *float64 `db:"stop" json:"stop"`
	GroupID *int64   `db:"group_id" json:"group_id"`

	// IsDelistingLiquidation marks a market-on-close order the manager
	// loop submitted on a delisting warning (spec §4.6 step 20). The
	// manager loop re-queries the order each iteration and only removes the
	// security once the refreshed order reports OrderStatusTypeFilled; a
	// partial fill leaves it in place.
	IsDelistingLiquidation bool `db:"-" json:"-" gorm:"-"`
}

// Remaining is the unfilled quantity left on the order.
func (o Order) Remaining() float64 {
	return o.Quantity - o.FilledQty
}

func (o Order) String() string {
	return fmt.Sprintf("[%s] %s %s | ID: %d, Type: %s, %f x $%f (~$%.f)",
		o.Status, o.Side, o.Pair, o.ID, o.Type, o.Quantity, o.Price, o.Quantity*o.Price)
}
