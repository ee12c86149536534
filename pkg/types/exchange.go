package types

type ExchangeName string

const (
	ExchangeBfl = ExchangeName("bfl") // bitFlyer Lightning
	ExchangeBgt = ExchangeName("bgt") // Bitget spot
	ExchangeBns = ExchangeName("bns") // Binance spot
)

// AdapterState is the lifecycle of an exchange adapter.
type AdapterState string

const (
	AdapterUninitialized = AdapterState("uninitialized")
	AdapterReady         = AdapterState("ready")
)
