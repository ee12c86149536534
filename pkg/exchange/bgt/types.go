package bgt

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const successCode = "00000"

// every Bitget v2 response is wrapped in this envelope
type envelope struct {
	Code        string          `json:"code"`
	Msg         string          `json:"msg"`
	RequestTime int64           `json:"requestTime"`
	Data        json.RawMessage `json:"data"`
}

// ╔══════════════╗
//      Market
// ╚══════════════╝

// levels are [price, size] string pairs
type orderBookData struct {
	Asks [][]decimal.NullDecimal `json:"asks"`
	Bids [][]decimal.NullDecimal `json:"bids"`
	Ts   string                  `json:"ts"`
}

type tickerData struct {
	Symbol string              `json:"symbol"`
	LastPr decimal.NullDecimal `json:"lastPr"`
	BidPr  decimal.NullDecimal `json:"bidPr"`
	AskPr  decimal.NullDecimal `json:"askPr"`
	Ts     string              `json:"ts"`
}

// ╔══════════════╗
//       Order
// ╚══════════════╝

type unfilledOrderData struct {
	OrderId    string              `json:"orderId"`
	ClientOid  string              `json:"clientOid"`
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side"`
	OrderType  string              `json:"orderType"`
	Status     string              `json:"status"`
	PriceAvg   decimal.NullDecimal `json:"priceAvg"` // limit price
	BasePrice  decimal.NullDecimal `json:"basePrice"`
	Size       decimal.NullDecimal `json:"size"`
	BaseVolume decimal.NullDecimal `json:"baseVolume"` // filled
	CTime      string              `json:"cTime"`
}

type placeOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
	Force     string `json:"force"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	ClientOid string `json:"clientOid"`
}

type cancelOrderRequest struct {
	Symbol  string `json:"symbol"`
	OrderId string `json:"orderId"`
}

type orderIdData struct {
	OrderId   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

// ╔══════════════╗
//      Account
// ╚══════════════╝

type assetData struct {
	Coin      string              `json:"coin"`
	Available decimal.NullDecimal `json:"available"`
	Frozen    decimal.NullDecimal `json:"frozen"`
	Locked    decimal.NullDecimal `json:"locked"`
}

type tradeRateData struct {
	MakerFeeRate decimal.NullDecimal `json:"makerFeeRate"`
	TakerFeeRate decimal.NullDecimal `json:"takerFeeRate"`
}
