package market

import "xchg/pkg/types"

// Market is a tradeable pair on one exchange.
type Market struct {
	Id              string // exchange market id, e.g. BTC_JPY or BTCUSDT
	ExchangeName    types.ExchangeName
	BaseCurrency    string
	CounterCurrency string
}

func New(exchangeName types.ExchangeName, id string, baseCurrency string, counterCurrency string) Market {
	return Market{
		Id:              id,
		ExchangeName:    exchangeName,
		BaseCurrency:    baseCurrency,
		CounterCurrency: counterCurrency,
	}
}

func (m Market) String() string {
	return string(m.ExchangeName) + ":" + m.Id
}
