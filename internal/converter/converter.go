// Package converter converts between currencies and values precious metals using a
// fixed USD-based rate table.
package converter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fintrack/fintrack/internal/domain"
)

// Places is the number of decimal places results are rounded to
const Places = 4

// Units of the base currency per one USD
var currencyRates = map[string]decimal.Decimal{
	"USD": decimal.RequireFromString("1.00"),
	"EUR": decimal.RequireFromString("0.93"),
	"RUB": decimal.RequireFromString("96.50"),
	"GBP": decimal.RequireFromString("0.80"),
	"CNY": decimal.RequireFromString("7.10"),
	"JPY": decimal.RequireFromString("148.0"),
	"KZT": decimal.RequireFromString("488.0"),
}

// USD per troy ounce
var metalPrices = map[string]decimal.Decimal{
	"XAU": decimal.RequireFromString("1930"),
	"XAG": decimal.RequireFromString("23.50"),
	"XPT": decimal.RequireFromString("910"),
	"XPD": decimal.RequireFromString("1250"),
}

// Rates is the table shown on the converter page
type Rates struct {
	Base       string                     `json:"base"`
	Currencies map[string]decimal.Decimal `json:"currencies"`
	Metals     map[string]decimal.Decimal `json:"metals"`
}

// Result of a conversion
type Result struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Value  decimal.Decimal `json:"value"`
	Rate   decimal.Decimal `json:"rate"`
}

// Table returns a copy of the current rates
func Table() Rates {
	out := Rates{
		Base:       "USD",
		Currencies: make(map[string]decimal.Decimal, len(currencyRates)),
		Metals:     make(map[string]decimal.Decimal, len(metalPrices)),
	}
	for k, v := range currencyRates {
		out.Currencies[k] = v
	}
	for k, v := range metalPrices {
		out.Metals[k] = v
	}
	return out
}

// Codes lists every supported currency and metal code in order
func Codes() []string {
	codes := make([]string, 0, len(currencyRates)+len(metalPrices))
	for k := range currencyRates {
		codes = append(codes, k)
	}
	for k := range metalPrices {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

// Convert converts amount between two codes. Either side may be a currency or a metal,
// in which case the amount is in troy ounces.
func Convert(amount decimal.Decimal, from, to string) (Result, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if amount.IsNegative() {
		return Result{}, fmt.Errorf("%w: amount must not be negative", domain.ErrInvalidInput)
	}
	fromUSD, err := usdValue(from)
	if err != nil {
		return Result{}, err
	}
	toUSD, err := usdValue(to)
	if err != nil {
		return Result{}, err
	}

	// usdValue gives the USD worth of one unit, so rate is how many "to" units one "from" buys
	rate := fromUSD.Div(toUSD)
	return Result{
		Amount: amount,
		From:   from,
		To:     to,
		Value:  amount.Mul(rate).Round(Places),
		Rate:   rate.Round(Places),
	}, nil
}

func usdValue(code string) (decimal.Decimal, error) {
	if perUSD, ok := currencyRates[code]; ok {
		return decimal.NewFromInt(1).Div(perUSD), nil
	}
	if price, ok := metalPrices[code]; ok {
		return price, nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: unsupported code %q", domain.ErrInvalidInput, code)
}
