package exchange

import (
	"context"

	"xchg/config"
	"xchg/pkg/apierr"
	"xchg/pkg/exchange/bfl"
	"xchg/pkg/exchange/bgt"
	"xchg/pkg/exchange/bns"
	"xchg/pkg/market"
	"xchg/pkg/order"
	"xchg/pkg/types"

	"github.com/shopspring/decimal"
)

// Exchange is the trading interface every adapter implements. Failures are
// *apierr.Error values; match them with errors.Is against the apierr
// sentinels.
type Exchange interface {
	Name() types.ExchangeName
	ImplName() string
	State() types.AdapterState
	Close()

	GetMarketOrders(ctx context.Context, marketId string) (*market.MarketOrderBook, error)
	GetLatestMarketPrice(ctx context.Context, marketId string) (decimal.Decimal, error) // best bid

	GetYourOpenOrders(ctx context.Context, marketId string) ([]order.OpenOrder, error)
	// CreateOrder places a GTC limit order. It is sent once unless the
	// exchange config opts into retry-create-order; a failure whose outcome
	// is unknown carries Ambiguous.
	CreateOrder(ctx context.Context, marketId string, side types.OrderSide, quantity decimal.Decimal, price decimal.Decimal) (string, error)
	// CancelOrder returns (false, nil) only when the exchange reports the
	// order as unknown. Every other failure is an error.
	CancelOrder(ctx context.Context, orderId string, marketId string) (bool, error)

	GetBalanceInfo(ctx context.Context) (*types.BalanceInfo, error)
	GetPercentageOfBuyOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error)
	GetPercentageOfSellOrderTakenForExchangeFee(ctx context.Context, marketId string) (decimal.Decimal, error)
}

var (
	_ Exchange = (*bfl.BflExchange)(nil)
	_ Exchange = (*bgt.BgtExchange)(nil)
	_ Exchange = (*bns.BnsExchange)(nil)
)

// creates a new exchange instance based on the provided config
func NewExchange(exchgId string, exchgConfig *config.ExchangeConfig) (Exchange, error) {
	if exchgConfig == nil {
		return nil, apierr.New(apierr.KindInitialization, exchgId, "init", "missing exchange config")
	}
	switch exchgConfig.ExchangeName {
	case types.ExchangeBfl:
		e, err := bfl.New(exchgConfig)
		if err != nil {
			return nil, err
		}
		return e, nil
	case types.ExchangeBgt:
		e, err := bgt.New(exchgConfig)
		if err != nil {
			return nil, err
		}
		return e, nil
	case types.ExchangeBns:
		e, err := bns.New(exchgConfig)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, apierr.New(apierr.KindInitialization, exchgId, "init", "unsupported exchange: %v", exchgConfig.ExchangeName)
	}
}
