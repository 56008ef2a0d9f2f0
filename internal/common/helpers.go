// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: денежная арифметика на decimal, форматирование сумм, работа с временем.
package common

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale: сколько знаков после запятой храним (NUMERIC(20,8) в БД).
const MoneyScale = 8

var hundred = decimal.NewFromInt(100)

// PercentOf возвращает amount * percent / 100, округлённое до MoneyScale.
//
// Примеры:
//
//	PercentOf(1000, 10)  → 100
//	PercentOf(50, 12.5)  → 6.25
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(MoneyScale)
}

// ParsePercent разбирает процент из документа настроек ("12.5", "12.5%").
// Пустая, некорректная или отрицательная строка даёт 0, а не ошибку.
func ParsePercent(raw string) decimal.Decimal {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// RatioPercent возвращает part / whole * 100. При whole <= 0 возвращает 0.
func RatioPercent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// FormatAmount форматирует сумму с разделителями тысяч и двумя знаками.
// Пример: FormatAmount(2350.5) → "2 350.50"
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	// Рекурсивно не надо, идём с конца группами по 3
	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)
	return sign + strings.Join(groups, " ") + "." + frac
}

// FormatSigned создаёт строку вида "+100.00" или "-50.00".
func FormatSigned(d decimal.Decimal) string {
	if d.IsNegative() {
		return FormatAmount(d)
	}
	return "+" + FormatAmount(d)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в указанном поясе.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
