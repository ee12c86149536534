package core

import (
	"fmt"
	"sort"
	"sync"

	"xchg/config"
	"xchg/pkg/exchange"
)

var (
	mu        sync.RWMutex
	Exchanges map[string]exchange.Exchange
	Markets   map[string][]config.MarketConfig // by exchange id
)

func init() {
	Exchanges = make(map[string]exchange.Exchange)
	Markets = make(map[string][]config.MarketConfig)
}

func RegisterExchange(exchgId string, exchgConfig *config.ExchangeConfig) error {
	exchg, err := exchange.NewExchange(exchgId, exchgConfig)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := Exchanges[exchgId]; exists {
		exchg.Close()
		return fmt.Errorf("exchange '%v' is already registered", exchgId)
	}
	Exchanges[exchgId] = exchg
	Markets[exchgId] = exchgConfig.Markets
	return nil
}

func GetExchange(exchgId string) (exchange.Exchange, bool) {
	mu.RLock()
	defer mu.RUnlock()
	exchg, exists := Exchanges[exchgId]
	return exchg, exists
}

func MarketsOf(exchgId string) []config.MarketConfig {
	mu.RLock()
	defer mu.RUnlock()
	return append([]config.MarketConfig(nil), Markets[exchgId]...)
}

// ExchangeIds returns the registered ids in sorted order.
func ExchangeIds() []string {
	mu.RLock()
	defer mu.RUnlock()
	ids := make([]string, 0, len(Exchanges))
	for id := range Exchanges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseExchanges releases the key material of every adapter and empties
// the registry.
func CloseExchanges() {
	mu.Lock()
	defer mu.Unlock()
	for id, exchg := range Exchanges {
		exchg.Close()
		delete(Exchanges, id)
		delete(Markets, id)
	}
}
