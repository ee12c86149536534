package utils

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func StrToDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fail to parse decimal '%v': %v", s, err)
	}
	return d, nil
}

// PercentToFraction turns a percentage such as "0.25" into 0.0025.
func PercentToFraction(s string) (decimal.Decimal, error) {
	d, err := StrToDecimal(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("percentage must not be negative: %v", s)
	}
	return d.Div(hundred), nil
}

func MsStrToTime(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("fail to parse millisecond timestamp '%v': %v", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// DecimalToStr formats d without exponent and without trailing zeros.
func DecimalToStr(d decimal.Decimal) string {
	return d.String()
}
