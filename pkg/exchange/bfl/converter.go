package bfl

import (
	"encoding/json"
	"fmt"

	"xchg/pkg/types"

	"github.com/shopspring/decimal"
)

func convertOrderSide(side types.OrderSide) (string, error) {
	switch side {
	case types.OrderSideBuy:
		return "BUY", nil
	case types.OrderSideSell:
		return "SELL", nil
	default:
		return "", fmt.Errorf("fail to convert OrderSide: %v", side)
	}
}

func convertDecimal(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
