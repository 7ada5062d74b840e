// Package fee рассчитывает комиссию платформы с продажи и чистую выручку продавца.
package fee

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

const (
	// FlatFee фиксированная часть комиссии в центах.
	FlatFee int64 = 80
)

// Rate пропорциональная часть комиссии (3%).
var Rate = decimal.RequireFromString("0.03")

// Breakdown раскладывает сумму продажи на комиссию и чистую выручку.
type Breakdown struct {
	Gross int64 `json:"gross"`
	Fee   int64 `json:"fee"`
	Net   int64 `json:"net"`
}

// ComputeSaleFee возвращает комиссию платформы: round(gross*0.03) + 80.
// Значение не ограничивается суммой продажи.
func ComputeSaleFee(gross int64) (int64, error) {
	if gross < 0 {
		return 0, fmt.Errorf("sale fee for %d: %w", gross, model.ErrInvalidAmount)
	}
	return Percent(gross, Rate) + FlatFee, nil
}

// NetAmount возвращает выручку продавца после комиссии, не меньше нуля.
func NetAmount(gross int64) (int64, error) {
	b, err := Sale(gross)
	if err != nil {
		return 0, err
	}
	return b.Net, nil
}

// Sale считает комиссию и чистую выручку для одной продажи.
func Sale(gross int64) (Breakdown, error) {
	f, err := ComputeSaleFee(gross)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		Gross: gross,
		Fee:   f,
		Net:   max(0, gross-f),
	}, nil
}

// Percent возвращает долю rate от amount, округлённую до цента (половина от нуля).
func Percent(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
