package order

import (
	"time"

	"xchg/pkg/types"

	"github.com/shopspring/decimal"
)

// OpenOrder is an order resting on the exchange.
type OpenOrder struct {
	Id               string
	CreationDate     time.Time
	MarketId         string
	Side             types.OrderSide
	Price            decimal.Decimal // limit price
	Quantity         decimal.Decimal // outstanding
	OriginalQuantity decimal.Decimal
	FilledQuantity   decimal.Decimal
	ReferencePrice   decimal.Decimal // exchange reported, e.g. average fill price; Price when none
	Total            decimal.Decimal // Price x OriginalQuantity
}

func New(id string, creationDate time.Time, marketId string, side types.OrderSide, price decimal.Decimal, originalQty decimal.Decimal, filledQty decimal.Decimal) OpenOrder {
	return OpenOrder{
		Id:               id,
		CreationDate:     creationDate,
		MarketId:         marketId,
		Side:             side,
		Price:            price,
		Quantity:         originalQty.Sub(filledQty),
		OriginalQuantity: originalQty,
		FilledQuantity:   filledQty,
		ReferencePrice:   price,
		Total:            price.Mul(originalQty),
	}
}
