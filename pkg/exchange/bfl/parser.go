package bfl

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"xchg/pkg/apierr"
	"xchg/pkg/market"
	"xchg/pkg/order"
	"xchg/pkg/types"

	"github.com/shopspring/decimal"
)

// bitFlyer timestamps are UTC without a zone suffix
const timeLayout = "2006-01-02T15:04:05.999999999"

func parseOrderSide(side string) (types.OrderSide, error) {
	switch strings.ToUpper(side) {
	case "BUY":
		return types.OrderSideBuy, nil
	case "SELL":
		return types.OrderSideSell, nil
	default:
		return "", fmt.Errorf("unknown order side: %v", side)
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("fail to parse time '%v': %v", s, err)
	}
	return t, nil
}

func required(v decimal.NullDecimal, op string, field string) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, apierr.Malformed(string(types.ExchangeBfl), op, "missing required field '%v'", field)
	}
	return v.Decimal, nil
}

func unmarshal(body string, v any, op string) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &apierr.Error{
			Kind:     apierr.KindMalformedResponse,
			Exchange: string(types.ExchangeBfl),
			Op:       op,
			Message:  "fail to decode response",
			Err:      err,
		}
	}
	return nil
}

func parseOrderBook(marketId string, body string) (*market.MarketOrderBook, error) {
	const op = "getMarketOrders"
	var res boardResponse
	if err := unmarshal(body, &res, op); err != nil {
		return nil, err
	}

	buyOrders, err := parseBoardLevels(res.Bids, types.OrderSideBuy, op)
	if err != nil {
		return nil, err
	}
	sellOrders, err := parseBoardLevels(res.Asks, types.OrderSideSell, op)
	if err != nil {
		return nil, err
	}
	return market.NewMarketOrderBook(marketId, sellOrders, buyOrders), nil
}

func parseBoardLevels(levels []boardLevel, side types.OrderSide, op string) ([]market.MarketOrder, error) {
	orders := make([]market.MarketOrder, 0, len(levels))
	for _, l := range levels {
		price, err := required(l.Price, op, "price")
		if err != nil {
			return nil, err
		}
		size, err := required(l.Size, op, "size")
		if err != nil {
			return nil, err
		}
		orders = append(orders, market.NewMarketOrder(side, price, size))
	}
	return orders, nil
}

func parseBestBid(body string) (decimal.Decimal, error) {
	const op = "getLatestMarketPrice"
	var res tickerResponse
	if err := unmarshal(body, &res, op); err != nil {
		return decimal.Zero, err
	}
	return required(res.BestBid, op, "best_bid")
}

func parseOpenOrders(body string) ([]order.OpenOrder, error) {
	const op = "getYourOpenOrders"
	var res []childOrderResponse
	if err := unmarshal(body, &res, op); err != nil {
		return nil, err
	}

	openOrders := make([]order.OpenOrder, 0, len(res))
	for _, r := range res {
		if r.ChildOrderAcceptanceId == "" {
			return nil, apierr.Malformed(string(types.ExchangeBfl), op, "missing required field 'child_order_acceptance_id'")
		}
		side, err := parseOrderSide(r.Side)
		if err != nil {
			return nil, apierr.Malformed(string(types.ExchangeBfl), op, "%v", err)
		}
		createdAt, err := parseTime(r.ChildOrderDate)
		if err != nil {
			return nil, apierr.Malformed(string(types.ExchangeBfl), op, "%v", err)
		}
		price, err := required(r.Price, op, "price")
		if err != nil {
			return nil, err
		}
		size, err := required(r.Size, op, "size")
		if err != nil {
			return nil, err
		}

		o := order.New(r.ChildOrderAcceptanceId, createdAt, r.ProductCode, side, price, size, r.ExecutedSize.Decimal)
		if r.OutstandingSize.Valid {
			o.Quantity = r.OutstandingSize.Decimal
		}
		if r.AveragePrice.Valid && r.AveragePrice.Decimal.IsPositive() {
			o.ReferencePrice = r.AveragePrice.Decimal
		}
		openOrders = append(openOrders, o)
	}
	return openOrders, nil
}

func parseOrderId(body string) (string, error) {
	const op = "createOrder"
	var res sendChildOrderResponse
	if err := unmarshal(body, &res, op); err != nil {
		return "", err
	}
	if res.ChildOrderAcceptanceId == "" {
		return "", apierr.Malformed(string(types.ExchangeBfl), op, "missing required field 'child_order_acceptance_id'")
	}
	return res.ChildOrderAcceptanceId, nil
}

func parseBalanceInfo(body string) (*types.BalanceInfo, error) {
	const op = "getBalanceInfo"
	var res []balanceResponse
	if err := unmarshal(body, &res, op); err != nil {
		return nil, err
	}

	balanceInfo := types.NewBalanceInfo()
	for _, r := range res {
		if r.CurrencyCode == "" {
			return nil, apierr.Malformed(string(types.ExchangeBfl), op, "missing required field 'currency_code'")
		}
		amount, err := required(r.Amount, op, "amount")
		if err != nil {
			return nil, err
		}
		available, err := required(r.Available, op, "available")
		if err != nil {
			return nil, err
		}
		balanceInfo.Available[r.CurrencyCode] = available
		balanceInfo.OnHold[r.CurrencyCode] = amount.Sub(available)
	}
	return balanceInfo, nil
}

func parseCommissionRate(body string) (decimal.Decimal, error) {
	const op = "getTradingCommission"
	var res commissionResponse
	if err := unmarshal(body, &res, op); err != nil {
		return decimal.Zero, err
	}
	return required(res.CommissionRate, op, "commission_rate")
}

// parseErrorResponse reads bitFlyer's {"status":-205,"error_message":"..."}
// envelope. ok is false when body is not one.
func parseErrorResponse(body string) (errorResponse, bool) {
	var res errorResponse
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return errorResponse{}, false
	}
	if res.Status == nil && res.ErrorMessage == "" {
		return errorResponse{}, false
	}
	return res, true
}
