package market

import (
	"sort"

	"xchg/pkg/types"

	"github.com/shopspring/decimal"
)

// MarketOrder is one price level of an order book side.
type MarketOrder struct {
	Side  types.OrderSide
	Price decimal.Decimal
	Size  decimal.Decimal
	Total decimal.Decimal // Price x Size
}

func NewMarketOrder(side types.OrderSide, price decimal.Decimal, size decimal.Decimal) MarketOrder {
	return MarketOrder{
		Side:  side,
		Price: price,
		Size:  size,
		Total: price.Mul(size),
	}
}

// MarketOrderBook keeps SellOrders ascending and BuyOrders descending by
// price, best price first on both sides.
type MarketOrderBook struct {
	MarketId   string
	SellOrders []MarketOrder
	BuyOrders  []MarketOrder
}

// NewMarketOrderBook sorts both sides into book order. Levels at equal
// price keep the order the exchange sent them in.
func NewMarketOrderBook(marketId string, sellOrders []MarketOrder, buyOrders []MarketOrder) *MarketOrderBook {
	sort.SliceStable(sellOrders, func(i, j int) bool {
		return sellOrders[i].Price.LessThan(sellOrders[j].Price)
	})
	sort.SliceStable(buyOrders, func(i, j int) bool {
		return buyOrders[i].Price.GreaterThan(buyOrders[j].Price)
	})
	return &MarketOrderBook{
		MarketId:   marketId,
		SellOrders: sellOrders,
		BuyOrders:  buyOrders,
	}
}

func (b *MarketOrderBook) BestBid() (MarketOrder, bool) {
	if len(b.BuyOrders) == 0 {
		return MarketOrder{}, false
	}
	return b.BuyOrders[0], true
}

func (b *MarketOrderBook) BestAsk() (MarketOrder, bool) {
	if len(b.SellOrders) == 0 {
		return MarketOrder{}, false
	}
	return b.SellOrders[0], true
}
