package test

import (
	"context"
	"fmt"

	"xchg/core"

	log "github.com/sirupsen/logrus"
)

// RunTest exercises the read-only operations of one registered exchange
// against the live API. It never places or cancels orders.
func RunTest(ctx context.Context, exchgId string) error {
	exchg, exists := core.GetExchange(exchgId)
	if !exists {
		return fmt.Errorf("exchange %v is not registered", exchgId)
	}
	logger := log.WithFields(log.Fields{"exchange": exchgId, "impl": exchg.ImplName()})

	// balances
	balance, err := exchg.GetBalanceInfo(ctx)
	if err != nil {
		return fmt.Errorf("fail to get balance: %w", err)
	}
	for currency, available := range balance.Available {
		logger.Infof("%v available %v, on hold %v", currency, available, balance.OnHold[currency])
	}

	// per market
	for _, m := range core.MarketsOf(exchgId) {
		mLogger := logger.WithField("market", m.Id)

		book, err := exchg.GetMarketOrders(ctx, m.Id)
		if err != nil {
			return fmt.Errorf("fail to get order book of %v: %w", m.Id, err)
		}
		if bid, ok := book.BestBid(); ok {
			mLogger.Infof("book best bid %v x %v", bid.Price, bid.Size)
		}
		if ask, ok := book.BestAsk(); ok {
			mLogger.Infof("book best ask %v x %v", ask.Price, ask.Size)
		}

		orders, err := exchg.GetYourOpenOrders(ctx, m.Id)
		if err != nil {
			return fmt.Errorf("fail to get open orders of %v: %w", m.Id, err)
		}
		for _, o := range orders {
			mLogger.Infof("open %v %v %v @ %v (filled %v)", o.Id, o.Side, o.Quantity, o.Price, o.FilledQuantity)
		}

		buyFee, err := exchg.GetPercentageOfBuyOrderTakenForExchangeFee(ctx, m.Id)
		if err != nil {
			return fmt.Errorf("fail to get buy fee of %v: %w", m.Id, err)
		}
		sellFee, err := exchg.GetPercentageOfSellOrderTakenForExchangeFee(ctx, m.Id)
		if err != nil {
			return fmt.Errorf("fail to get sell fee of %v: %w", m.Id, err)
		}
		mLogger.Infof("fees buy %v sell %v", buyFee, sellFee)
	}
	return nil
}
