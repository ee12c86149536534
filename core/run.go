package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"xchg/config"
	"xchg/pkg/exchange"

	log "github.com/sirupsen/logrus"
)

// Run probes every registered exchange once by reading the latest price of
// each configured market.
func Run(ctx context.Context) error {
	log.Info("🦿 Running...")

	type probe struct {
		exchgId string
		exchg   exchange.Exchange
		market  config.MarketConfig
	}
	var probes []probe
	for _, exchgId := range ExchangeIds() {
		exchg, _ := GetExchange(exchgId)
		for _, m := range MarketsOf(exchgId) {
			probes = append(probes, probe{exchgId: exchgId, exchg: exchg, market: m})
		}
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(probes))
	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			price, err := p.exchg.GetLatestMarketPrice(ctx, p.market.Id)
			fields := log.Fields{"exchange": p.exchgId, "market": p.market.Id}
			if err != nil {
				log.WithFields(fields).Errorf("fail to probe market: %v", err)
				errChan <- fmt.Errorf("%v %v: %w", p.exchgId, p.market.Id, err)
				return
			}
			log.WithFields(fields).Infof("best bid %v %v", price, p.market.CounterCurrency)
		}(p)
	}
	go func() {
		wg.Wait()
		close(errChan)
	}()

	// collect errors
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during probe: %w", errors.Join(errs...))
	}
	return nil
}
