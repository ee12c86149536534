package bgt

import (
	"fmt"

	"xchg/pkg/types"
)

func convertOrderSide(side types.OrderSide) (string, error) {
	switch side {
	case types.OrderSideBuy:
		return "buy", nil
	case types.OrderSideSell:
		return "sell", nil
	default:
		return "", fmt.Errorf("fail to convert OrderSide: %v", side)
	}
}

func convertOrderTif(tif types.OrderTIF) (string, error) {
	switch tif {
	case types.OrderTIFGTC:
		return "gtc", nil
	default:
		return "", fmt.Errorf("fail to convert OrderTIF: %v", tif)
	}
}
