package bgt

import (
	"encoding/json"
	"fmt"
	"strings"

	"xchg/pkg/apierr"
	"xchg/pkg/market"
	"xchg/pkg/order"
	"xchg/pkg/types"
	"xchg/pkg/utils"

	"github.com/shopspring/decimal"
)

func malformed(op string, format string, args ...any) error {
	return apierr.Malformed(string(types.ExchangeBgt), op, format, args...)
}

func required(v decimal.NullDecimal, op string, field string) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, malformed(op, "missing required field '%v'", field)
	}
	return v.Decimal, nil
}

func unmarshal(data []byte, v any, op string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &apierr.Error{
			Kind:     apierr.KindMalformedResponse,
			Exchange: string(types.ExchangeBgt),
			Op:       op,
			Message:  "fail to decode response",
			Err:      err,
		}
	}
	return nil
}

// parseEnvelope decodes the response wrapper. ok is false when body is not
// a Bitget envelope at all.
func parseEnvelope(body string) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil || env.Code == "" {
		return envelope{}, false
	}
	return env, true
}

func parseOrderSide(side string) (types.OrderSide, error) {
	switch strings.ToLower(side) {
	case "buy":
		return types.OrderSideBuy, nil
	case "sell":
		return types.OrderSideSell, nil
	default:
		return "", fmt.Errorf("unknown order side: %v", side)
	}
}

func parseOrderBook(marketId string, data []byte) (*market.MarketOrderBook, error) {
	const op = "getMarketOrders"
	var res orderBookData
	if err := unmarshal(data, &res, op); err != nil {
		return nil, err
	}
	buyOrders, err := parseLevels(res.Bids, types.OrderSideBuy, op)
	if err != nil {
		return nil, err
	}
	sellOrders, err := parseLevels(res.Asks, types.OrderSideSell, op)
	if err != nil {
		return nil, err
	}
	return market.NewMarketOrderBook(marketId, sellOrders, buyOrders), nil
}

func parseLevels(levels [][]decimal.NullDecimal, side types.OrderSide, op string) ([]market.MarketOrder, error) {
	orders := make([]market.MarketOrder, 0, len(levels))
	for i, l := range levels {
		if len(l) < 2 {
			return nil, malformed(op, "%v level %d has %d fields", side, i, len(l))
		}
		price, err := required(l[0], op, "price")
		if err != nil {
			return nil, err
		}
		size, err := required(l[1], op, "size")
		if err != nil {
			return nil, err
		}
		orders = append(orders, market.NewMarketOrder(side, price, size))
	}
	return orders, nil
}

func parseBestBid(marketId string, data []byte) (decimal.Decimal, error) {
	const op = "getLatestMarketPrice"
	var res []tickerData
	if err := unmarshal(data, &res, op); err != nil {
		return decimal.Zero, err
	}
	for _, ticker := range res {
		if ticker.Symbol == marketId || len(res) == 1 {
			return required(ticker.BidPr, op, "bidPr")
		}
	}
	return decimal.Zero, malformed(op, "no ticker for symbol '%v'", marketId)
}

func parseOpenOrders(data []byte) ([]order.OpenOrder, error) {
	const op = "getYourOpenOrders"
	var res []unfilledOrderData
	if err := unmarshal(data, &res, op); err != nil {
		return nil, err
	}

	openOrders := make([]order.OpenOrder, 0, len(res))
	for _, r := range res {
		if r.OrderId == "" {
			return nil, malformed(op, "missing required field 'orderId'")
		}
		side, err := parseOrderSide(r.Side)
		if err != nil {
			return nil, malformed(op, "%v", err)
		}
		createdAt, err := utils.MsStrToTime(r.CTime)
		if err != nil {
			return nil, malformed(op, "%v", err)
		}
		price, err := required(r.PriceAvg, op, "priceAvg")
		if err != nil {
			return nil, err
		}
		size, err := required(r.Size, op, "size")
		if err != nil {
			return nil, err
		}

		o := order.New(r.OrderId, createdAt, r.Symbol, side, price, size, r.BaseVolume.Decimal)
		if r.BasePrice.Valid && r.BasePrice.Decimal.IsPositive() {
			o.ReferencePrice = r.BasePrice.Decimal
		}
		openOrders = append(openOrders, o)
	}
	return openOrders, nil
}

func parseOrderId(data []byte, op string) (string, error) {
	var res orderIdData
	if err := unmarshal(data, &res, op); err != nil {
		return "", err
	}
	if res.OrderId == "" {
		return "", malformed(op, "missing required field 'orderId'")
	}
	return res.OrderId, nil
}

// parseOrderInfoId reads the orderId out of an orderInfo list response.
func parseOrderInfoId(data []byte, op string) (string, error) {
	var res []orderIdData
	if err := unmarshal(data, &res, op); err != nil {
		return "", err
	}
	if len(res) == 0 || res[0].OrderId == "" {
		return "", malformed(op, "missing required field 'orderId'")
	}
	return res[0].OrderId, nil
}

func parseBalanceInfo(data []byte) (*types.BalanceInfo, error) {
	const op = "getBalanceInfo"
	var res []assetData
	if err := unmarshal(data, &res, op); err != nil {
		return nil, err
	}

	balanceInfo := types.NewBalanceInfo()
	for _, r := range res {
		if r.Coin == "" {
			return nil, malformed(op, "missing required field 'coin'")
		}
		available, err := required(r.Available, op, "available")
		if err != nil {
			return nil, err
		}
		frozen, err := required(r.Frozen, op, "frozen")
		if err != nil {
			return nil, err
		}
		balanceInfo.Available[r.Coin] = available
		balanceInfo.OnHold[r.Coin] = frozen.Add(r.Locked.Decimal)
	}
	return balanceInfo, nil
}

func parseTakerFeeRate(data []byte) (decimal.Decimal, error) {
	const op = "getTradeRate"
	var res tradeRateData
	if err := unmarshal(data, &res, op); err != nil {
		return decimal.Zero, err
	}
	return required(res.TakerFeeRate, op, "takerFeeRate")
}
