package utils

import "math"

// math.go - математика базисных пунктов
//
// Все функции чистые, без побочных эффектов.
// 1 базисный пункт (bps) = 1/100 процента = 1/10000 доли.

// BpsEpsilon - допуск сравнения значений в bps.
// Суммы компонентов стоимости должны сходиться с этой точностью.
const BpsEpsilon = 0.01

// SlippageBps возвращает фактический slippage в базисных пунктах.
//
// |filledPrice - expectedPrice| / expectedPrice * 10000
//
// Модуль: slippage всегда неотрицательный, направление отклонения
// восстанавливается из цен в метаданных fill'а.
//
// Пример: expected 50000, filled 50100 → 20.0 bps
func SlippageBps(expectedPrice, filledPrice float64) float64 {
	if expectedPrice == 0 {
		return 0
	}
	return math.Abs(filledPrice-expectedPrice) / expectedPrice * 10000
}

// FeeBps возвращает фактическую комиссию в базисных пунктах от notional.
//
// fee / (price * qty) * 10000
//
// Пример: fee 5.0, price 50000, qty 0.01 → 100.0 bps
func FeeBps(fee, price, qty float64) float64 {
	notional := price * qty
	if notional == 0 {
		return 0
	}
	return fee / notional * 10000
}

// BpsEqual сравнивает два значения в bps с допуском BpsEpsilon
func BpsEqual(a, b float64) bool {
	return math.Abs(a-b) < BpsEpsilon
}

// RoundBps округляет значение bps до сотых
func RoundBps(v float64) float64 {
	return math.Round(v*100) / 100
}
