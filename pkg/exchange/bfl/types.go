package bfl

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ╔══════════════╗
//      Market
// ╚══════════════╝

type boardResponse struct {
	MidPrice decimal.NullDecimal `json:"mid_price"`
	Bids     []boardLevel        `json:"bids"`
	Asks     []boardLevel        `json:"asks"`
}

type boardLevel struct {
	Price decimal.NullDecimal `json:"price"`
	Size  decimal.NullDecimal `json:"size"`
}

type tickerResponse struct {
	ProductCode string              `json:"product_code"`
	Timestamp   string              `json:"timestamp"`
	BestBid     decimal.NullDecimal `json:"best_bid"`
	BestAsk     decimal.NullDecimal `json:"best_ask"`
	Ltp         decimal.NullDecimal `json:"ltp"`
}

// ╔══════════════╗
//       Order
// ╚══════════════╝

type childOrderResponse struct {
	Id                     int64               `json:"id"`
	ChildOrderId           string              `json:"child_order_id"`
	ChildOrderAcceptanceId string              `json:"child_order_acceptance_id"`
	ProductCode            string              `json:"product_code"`
	Side                   string              `json:"side"`
	ChildOrderType         string              `json:"child_order_type"`
	ChildOrderState        string              `json:"child_order_state"`
	ChildOrderDate         string              `json:"child_order_date"`
	Price                  decimal.NullDecimal `json:"price"`
	AveragePrice           decimal.NullDecimal `json:"average_price"`
	Size                   decimal.NullDecimal `json:"size"`
	OutstandingSize        decimal.NullDecimal `json:"outstanding_size"`
	ExecutedSize           decimal.NullDecimal `json:"executed_size"`
	CancelSize             decimal.NullDecimal `json:"cancel_size"`
}

// bitFlyer wants bare JSON numbers for price and size
type sendChildOrderRequest struct {
	ProductCode    string      `json:"product_code"`
	ChildOrderType string      `json:"child_order_type"`
	Side           string      `json:"side"`
	Price          json.Number `json:"price"`
	Size           json.Number `json:"size"`
	TimeInForce    string      `json:"time_in_force"`
}

type sendChildOrderResponse struct {
	ChildOrderAcceptanceId string `json:"child_order_acceptance_id"`
}

type cancelChildOrderRequest struct {
	ProductCode            string `json:"product_code"`
	ChildOrderAcceptanceId string `json:"child_order_acceptance_id"`
}

// ╔══════════════╗
//      Account
// ╚══════════════╝

type balanceResponse struct {
	CurrencyCode string              `json:"currency_code"`
	Amount       decimal.NullDecimal `json:"amount"`
	Available    decimal.NullDecimal `json:"available"`
}

type commissionResponse struct {
	CommissionRate decimal.NullDecimal `json:"commission_rate"`
}

type errorResponse struct {
	Status       *int   `json:"status"`
	ErrorMessage string `json:"error_message"`
}
