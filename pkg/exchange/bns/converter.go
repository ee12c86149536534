package bns

import (
	"fmt"
	"strconv"

	"xchg/pkg/types"

	"github.com/adshao/go-binance/v2"
)

func convertOrderSide(side types.OrderSide) (binance.SideType, error) {
	switch side {
	case types.OrderSideBuy:
		return binance.SideTypeBuy, nil
	case types.OrderSideSell:
		return binance.SideTypeSell, nil
	default:
		return "", fmt.Errorf("unknown order side: %s", side)
	}
}

func convertOrderTIF(tif types.OrderTIF) (binance.TimeInForceType, error) {
	switch tif {
	case types.OrderTIFGTC:
		return binance.TimeInForceTypeGTC, nil
	default:
		return "", fmt.Errorf("unknown tif: %s", tif)
	}
}

func convertOrderId(orderId string) (int64, error) {
	id, err := strconv.ParseInt(orderId, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("order id must be numeric: %v", orderId)
	}
	return id, nil
}
