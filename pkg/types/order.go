package types

type OrderSide string

const (
	OrderSideBuy  = OrderSide("BUY")
	OrderSideSell = OrderSide("SELL")
)

func (s OrderSide) IsValid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

type OrderTIF string // TimeInForce

const (
	OrderTIFGTC = OrderTIF("GTC") // Good 'Til Canceled
)

type OrderType string

const (
	OrderLimit = OrderType("LIMIT")
)
