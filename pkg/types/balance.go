package types

import "github.com/shopspring/decimal"

// BalanceInfo maps currency codes to amounts as the exchange reports them.
// Codes are not unified across exchanges (e.g. "JPY" on bitFlyer).
type BalanceInfo struct {
	Available map[string]decimal.Decimal `json:"available"`
	OnHold    map[string]decimal.Decimal `json:"onHold"` // total minus available
}

func NewBalanceInfo() *BalanceInfo {
	return &BalanceInfo{
		Available: make(map[string]decimal.Decimal),
		OnHold:    make(map[string]decimal.Decimal),
	}
}
