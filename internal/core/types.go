package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

type OrderStatus string

type PositionSide string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	Limit            OrderType = "LIMIT"
	Market           OrderType = "MARKET"
	Stop             OrderType = "STOP"
	StopMarket       OrderType = "STOP_MARKET"
	TakeProfit       OrderType = "TAKE_PROFIT"
	TakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
	PositionBoth  PositionSide = "BOTH"
)

type Order struct {
	ID           string
	ClientID     string
	Symbol       string
	Side         Side
	Type         OrderType
	PositionSide PositionSide
	Price        decimal.Decimal
	Qty          decimal.Decimal
	Status       OrderStatus
	CreatedAt    time.Time
}

// OrderUpdate is one decoded order event from the user-data stream.
// It is consumed once by the classifier and never retained.
type OrderUpdate struct {
	Symbol        string
	ClientOrderID string
	Type          OrderType
	Status        OrderStatus
	PositionSide  PositionSide
	ClosePosition bool
	Time          time.Time
}
