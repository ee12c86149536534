package bns

import (
	"strconv"
	"strings"
	"time"

	"xchg/pkg/apierr"
	"xchg/pkg/market"
	"xchg/pkg/order"
	"xchg/pkg/types"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// commission fields of the account endpoint are in basis points
var basisPoints = decimal.NewFromInt(10000)

func malformed(op string, format string, args ...any) error {
	return apierr.Malformed(string(types.ExchangeBns), op, format, args...)
}

// required decodes a decimal field the SDK hands over as a string. The SDK
// leaves absent fields empty, which is reported as missing.
func required(s string, op string, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, malformed(op, "missing required field '%v'", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, malformed(op, "fail to parse field '%v': %v", field, err)
	}
	return d, nil
}

func parseOrderSide(side binance.SideType) (types.OrderSide, error) {
	switch strings.ToUpper(string(side)) {
	case string(binance.SideTypeBuy):
		return types.OrderSideBuy, nil
	case string(binance.SideTypeSell):
		return types.OrderSideSell, nil
	default:
		return "", malformed("parseOrderSide", "unknown order side: %v", side)
	}
}

func parseOrderBook(marketId string, res *binance.DepthResponse) (*market.MarketOrderBook, error) {
	const op = "getMarketOrders"
	if res == nil {
		return nil, malformed(op, "empty depth response")
	}

	buyOrders := make([]market.MarketOrder, 0, len(res.Bids))
	for _, bid := range res.Bids {
		o, err := parseLevel(types.OrderSideBuy, bid.Price, bid.Quantity, op)
		if err != nil {
			return nil, err
		}
		buyOrders = append(buyOrders, o)
	}
	sellOrders := make([]market.MarketOrder, 0, len(res.Asks))
	for _, ask := range res.Asks {
		o, err := parseLevel(types.OrderSideSell, ask.Price, ask.Quantity, op)
		if err != nil {
			return nil, err
		}
		sellOrders = append(sellOrders, o)
	}
	return market.NewMarketOrderBook(marketId, sellOrders, buyOrders), nil
}

func parseLevel(side types.OrderSide, priceStr string, sizeStr string, op string) (market.MarketOrder, error) {
	price, err := required(priceStr, op, "price")
	if err != nil {
		return market.MarketOrder{}, err
	}
	size, err := required(sizeStr, op, "quantity")
	if err != nil {
		return market.MarketOrder{}, err
	}
	return market.NewMarketOrder(side, price, size), nil
}

func parseBestBid(marketId string, tickers []*binance.BookTicker) (decimal.Decimal, error) {
	const op = "getLatestMarketPrice"
	for _, t := range tickers {
		if t == nil || t.Symbol != marketId {
			continue
		}
		return required(t.BidPrice, op, "bidPrice")
	}
	return decimal.Zero, malformed(op, "no book ticker for %v", marketId)
}

func parseOpenOrders(res []*binance.Order) ([]order.OpenOrder, error) {
	const op = "getYourOpenOrders"
	orders := make([]order.OpenOrder, 0, len(res))
	for _, r := range res {
		if r == nil {
			continue
		}
		if r.Time == 0 {
			return nil, malformed(op, "missing required field 'time'")
		}
		side, err := parseOrderSide(r.Side)
		if err != nil {
			return nil, apierr.WithOp(err, string(types.ExchangeBns), op)
		}
		price, err := required(r.Price, op, "price")
		if err != nil {
			return nil, err
		}
		origQty, err := required(r.OrigQuantity, op, "origQty")
		if err != nil {
			return nil, err
		}
		executedQty, err := required(r.ExecutedQuantity, op, "executedQty")
		if err != nil {
			return nil, err
		}
		orders = append(orders, order.New(
			strconv.FormatInt(r.OrderID, 10),
			time.UnixMilli(r.Time).UTC(),
			r.Symbol,
			side,
			price,
			origQty,
			executedQty,
		))
	}
	return orders, nil
}

func parseBalanceInfo(account *binance.Account) (*types.BalanceInfo, error) {
	const op = "getBalanceInfo"
	if account == nil {
		return nil, malformed(op, "empty account response")
	}
	balanceInfo := types.NewBalanceInfo()
	for _, b := range account.Balances {
		if b.Asset == "" {
			return nil, malformed(op, "missing required field 'asset'")
		}
		free, err := required(b.Free, op, "free")
		if err != nil {
			return nil, err
		}
		locked, err := required(b.Locked, op, "locked")
		if err != nil {
			return nil, err
		}
		balanceInfo.Available[b.Asset] = free
		balanceInfo.OnHold[b.Asset] = locked
	}
	return balanceInfo, nil
}

func parseTakerFee(account *binance.Account) (decimal.Decimal, error) {
	if account == nil {
		return decimal.Zero, malformed("getTradingFee", "empty account response")
	}
	if account.TakerCommission < 0 {
		return decimal.Zero, malformed("getTradingFee", "negative taker commission: %v", account.TakerCommission)
	}
	return decimal.NewFromInt(account.TakerCommission).Div(basisPoints), nil
}
